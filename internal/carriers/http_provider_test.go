package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/services"
)

func testRequest() services.RateRequest {
	return services.RateRequest{
		ZoneID:  "EU",
		Service: domain.ServiceExpress,
		Packages: []domain.PackedPackage{{
			Kind:        domain.PackagingBox,
			ReferenceID: "BOX-L",
			LengthCm:    85,
			WidthCm:     65,
			HeightCm:    15,
			WeightKg:    2,
			DimWeightKg: 17,
		}},
		InsuredAmount: 7499,
		Currency:      "EUR",
	}
}

func TestHTTPRateProviderRate(t *testing.T) {
	var received rateRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer carrier-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":3100,"insuranceFee":112,"signatureFee":0,"currency":"eur"}`))
	}))
	defer server.Close()

	provider, err := NewHTTPRateProvider(HTTPRateProviderConfig{Endpoint: server.URL, APIKey: "carrier-key"})
	if err != nil {
		t.Fatalf("NewHTTPRateProvider: %v", err)
	}

	breakdown, err := provider.Rate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if received.Zone != "EU" || received.Service != "EXPRESS" {
		t.Fatalf("unexpected request payload: %+v", received)
	}
	if len(received.Packages) != 1 || received.Packages[0].WeightKg != 17 {
		t.Fatalf("expected billable weight in payload, got %+v", received.Packages)
	}
	if breakdown.Base != 3100 || breakdown.Total != 3212 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}
	if breakdown.SignatureFee != nil {
		t.Fatalf("expected zero signature fee to be omitted")
	}
	if breakdown.InsuranceFee == nil || *breakdown.InsuranceFee != 112 {
		t.Fatalf("unexpected insurance fee: %v", breakdown.InsuranceFee)
	}
	if breakdown.Currency != "EUR" {
		t.Fatalf("expected upper-cased currency, got %s", breakdown.Currency)
	}
}

func TestHTTPRateProviderRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"base":1500}`))
	}))
	defer server.Close()

	var retries int
	provider, err := NewHTTPRateProvider(HTTPRateProviderConfig{
		Endpoint:        server.URL,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			if event == "carrier_rate_retry" {
				retries++
			}
		},
	})
	if err != nil {
		t.Fatalf("NewHTTPRateProvider: %v", err)
	}

	breakdown, err := provider.Rate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if breakdown.Total != 1500 || breakdown.Currency != "EUR" {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}
	if calls.Load() != 3 || retries != 2 {
		t.Fatalf("expected 3 calls and 2 retries, got %d/%d", calls.Load(), retries)
	}
}

func TestHTTPRateProviderGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, err := NewHTTPRateProvider(HTTPRateProviderConfig{Endpoint: server.URL, MaxRetries: 1, InitialInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewHTTPRateProvider: %v", err)
	}
	_, err = provider.Rate(context.Background(), testRequest())
	if !errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("expected ErrCarrierUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestHTTPRateProviderNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, err := NewHTTPRateProvider(HTTPRateProviderConfig{Endpoint: server.URL, MaxRetries: 3, InitialInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewHTTPRateProvider: %v", err)
	}
	_, err = provider.Rate(context.Background(), testRequest())
	if !errors.Is(err, services.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestNewHTTPRateProviderRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPRateProvider(HTTPRateProviderConfig{}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
