package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/atelierhq/quoting/internal/domain"
)

const meterName = "github.com/atelierhq/quoting/internal/services"

// QuoteMetrics records quote throughput and omitted shipping options as OpenTelemetry counters.
type QuoteMetrics struct {
	assembled metric.Int64Counter
	omitted   metric.Int64Counter
}

// NewQuoteMetrics registers the counters on meter, or on the global provider when meter is nil.
func NewQuoteMetrics(meter metric.Meter) (*QuoteMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	assembled, err := meter.Int64Counter("quotes.assembled",
		metric.WithDescription("Quotes assembled, by currency and destination country"))
	if err != nil {
		return nil, err
	}
	omitted, err := meter.Int64Counter("shipping.options.omitted",
		metric.WithDescription("Shipping options dropped because the rate provider failed"))
	if err != nil {
		return nil, err
	}
	return &QuoteMetrics{assembled: assembled, omitted: omitted}, nil
}

func (m *QuoteMetrics) QuoteAssembled(ctx context.Context, currency, country string) {
	m.assembled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", currency),
		attribute.String("country", country),
	))
}

func (m *QuoteMetrics) OptionOmitted(ctx context.Context, zoneID string, service domain.ServiceLevel) {
	m.omitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("zone", zoneID),
		attribute.String("service", string(service)),
	))
}
