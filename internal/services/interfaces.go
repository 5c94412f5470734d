package services

import (
	"context"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	PackableItem   = domain.PackableItem
	PackingResult  = domain.PackingResult
	QuoteOption    = domain.QuoteOption
	QuoteBreakdown = domain.QuoteBreakdown
	TaxCalculation = domain.TaxCalculation
	TaxDestination = domain.TaxDestination
	HealthReport   = domain.HealthReport
)

// QuoteService is the checkout-facing boundary: it loads rule sets, then runs the pure engine.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
	ShippingOptions(ctx context.Context, cmd ShippingOptionsCommand) (ShippingOptionsResult, error)
	Pack(ctx context.Context, items []PackableItem) (PackingResult, error)
	CalculateTax(ctx context.Context, req TaxRequest) (TaxCalculation, error)
}

// SystemService exposes runtime health for the readiness endpoint.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// QuoteMetrics receives engine counters.
type QuoteMetrics interface {
	QuoteAssembled(ctx context.Context, currency, country string)
	OptionOmitted(ctx context.Context, zoneID string, service domain.ServiceLevel)
}

type noopQuoteMetrics struct{}

func (noopQuoteMetrics) QuoteAssembled(context.Context, string, string) {}

func (noopQuoteMetrics) OptionOmitted(context.Context, string, domain.ServiceLevel) {}

// PackingPlanPublisher hands packing plans to the shipment-creation workflow.
type PackingPlanPublisher interface {
	PublishPackingPlan(ctx context.Context, message PackingPlanMessage) (string, error)
}

// PackingPlanMessage is the payload delivered to fulfilment workers via Pub/Sub.
type PackingPlanMessage struct {
	PlanID    string               `json:"planId"`
	OrderID   string               `json:"orderId,omitempty"`
	Country   string               `json:"country"`
	ZoneID    string               `json:"zoneId"`
	Oversize  bool                 `json:"oversize"`
	Packages  []PackingPlanPackage `json:"packages"`
	Options   []PackingPlanOption  `json:"options"`
	CreatedAt time.Time            `json:"createdAt"`
}

type PackingPlanPackage struct {
	Kind        string            `json:"kind"`
	ReferenceID string            `json:"referenceId,omitempty"`
	LengthCm    float64           `json:"lengthCm"`
	WidthCm     float64           `json:"widthCm"`
	HeightCm    float64           `json:"heightCm"`
	WeightKg    float64           `json:"weightKg"`
	DimWeightKg float64           `json:"dimWeightKg"`
	Oversize    bool              `json:"oversize"`
	Items       []PackingPlanItem `json:"items"`
}

type PackingPlanItem struct {
	OrderItemID string `json:"orderItemId"`
	Quantity    int    `json:"quantity"`
}

type PackingPlanOption struct {
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	MinDays  int    `json:"minDays"`
	MaxDays  int    `json:"maxDays"`
}
