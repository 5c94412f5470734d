package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atelierhq/quoting/internal/platform/requestctx"
)

func TestEventLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hook := EventLogger(zap.New(core).Named("quote"))

	hook(context.Background(), "quote_assembled", map[string]any{"total": int64(11424), "country": "DE"})
	hook(context.Background(), "shipping_option_omitted", map[string]any{"error": errors.New("no rate")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "quote_assembled" || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if got := entries[0].ContextMap()["total"]; got != int64(11424) {
		t.Fatalf("expected total field, got %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected failures to log at warn, got %s", entries[1].Level)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	hook := EventLogger(zap.New(fallbackCore).Named("shipping"))

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	hook(ctx, "pricing_rule_applied", nil)

	if fallbackLogs.Len() != 0 {
		t.Fatalf("expected fallback logger unused")
	}
	entries := requestLogs.All()
	if len(entries) != 1 || entries[0].ContextMap()["component"] != "shipping" {
		t.Fatalf("unexpected request log entries: %+v", entries)
	}
}

func TestParseCloudTraceHeader(t *testing.T) {
	sc, ok := parseCloudTraceHeader("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	for _, header := range []string{"", "nope", "105445aa7843bc8bf206b12000100000/abc", "xyz/1"} {
		if _, ok := parseCloudTraceHeader(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"internal_server_error"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entries[0].Level)
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusUnprocessableEntity) {
		t.Fatalf("unexpected status field %v", status)
	}
}
