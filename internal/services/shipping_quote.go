package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

const defaultRateTimeout = 2 * time.Second

type ShippingQuoter struct {
	packer   *Packer
	zones    *ZoneResolver
	rates    RateProvider
	etas     map[rateKey]domain.ETARange
	names    map[domain.ServiceLevel]string
	currency string
	timeout  time.Duration
	metrics  QuoteMetrics
	logger   func(context.Context, string, map[string]any)
}

type ShippingQuoterDeps struct {
	Packer       *Packer
	Zones        *ZoneResolver
	Rates        RateProvider
	ETAs         []domain.ETAEntry
	ServiceNames map[domain.ServiceLevel]string
	Currency     string
	RateTimeout  time.Duration
	Metrics      QuoteMetrics
	Logger       func(context.Context, string, map[string]any)
}

func NewShippingQuoter(deps ShippingQuoterDeps) (*ShippingQuoter, error) {
	if deps.Packer == nil {
		return nil, errors.New("shipping quoter: packer is required")
	}
	if deps.Zones == nil {
		return nil, errors.New("shipping quoter: zone resolver is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("shipping quoter: rate provider is required")
	}
	timeout := deps.RateTimeout
	if timeout <= 0 {
		timeout = defaultRateTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopQuoteMetrics{}
	}

	etas := make(map[rateKey]domain.ETARange, len(deps.ETAs))
	for _, entry := range deps.ETAs {
		etas[rateKey{zone: entry.ZoneID, service: entry.Service}] = entry.ETA
	}
	names := map[domain.ServiceLevel]string{
		domain.ServiceStandard: "Standard",
		domain.ServiceExpress:  "Express",
	}
	for level, name := range deps.ServiceNames {
		if strings.TrimSpace(name) != "" {
			names[level] = name
		}
	}

	return &ShippingQuoter{
		packer:   deps.Packer,
		zones:    deps.Zones,
		rates:    deps.Rates,
		etas:     etas,
		names:    names,
		currency: strings.ToUpper(strings.TrimSpace(deps.Currency)),
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

type ShippingQuoteCommand struct {
	Items   []domain.PackableItem
	Country string
	Method  domain.ServiceLevel
}

type ShippingQuoteResult struct {
	ZoneID  string
	Packing domain.PackingResult
	Options []domain.QuoteOption
}

// Quote packs the items once and prices every service level for the destination zone.
// Providers that fail or time out drop their option; an empty option list is not an error.
// Oversize shipments only ever offer EXPRESS.
func (q *ShippingQuoter) Quote(ctx context.Context, cmd ShippingQuoteCommand) (ShippingQuoteResult, error) {
	if len(cmd.Items) == 0 {
		return ShippingQuoteResult{}, fmt.Errorf("%w: at least one item is required", ErrQuoteInvalidInput)
	}
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return ShippingQuoteResult{}, fmt.Errorf("%w: item %s quantity must be positive", ErrQuoteInvalidInput, item.OrderItemID)
		}
		if item.WidthCm <= 0 || item.HeightCm <= 0 {
			return ShippingQuoteResult{}, fmt.Errorf("%w: item %s dimensions must be positive", ErrQuoteInvalidInput, item.OrderItemID)
		}
	}
	method := domain.ServiceLevel(strings.ToUpper(strings.TrimSpace(string(cmd.Method))))
	if method != "" && method != domain.ServiceStandard && method != domain.ServiceExpress {
		return ShippingQuoteResult{}, fmt.Errorf("%w: unknown shipping method %q", ErrQuoteInvalidInput, cmd.Method)
	}

	packing := q.packer.Pack(cmd.Items)
	zoneID := q.zones.ZoneFor(cmd.Country)
	insured := insuredAmount(cmd.Items)

	options := make([]domain.QuoteOption, 0, len(domain.ServiceLevels))
	for _, level := range domain.ServiceLevels {
		if packing.Oversize && level != domain.ServiceExpress {
			continue
		}
		if method != "" && level != method {
			continue
		}
		breakdown, err := q.rate(ctx, RateRequest{
			ZoneID:        zoneID,
			Service:       level,
			Packages:      packing.Packages,
			InsuredAmount: insured,
			Currency:      q.currency,
		})
		if err != nil {
			q.metrics.OptionOmitted(ctx, zoneID, level)
			q.logger(ctx, "shipping_option_omitted", map[string]any{
				"zone":    zoneID,
				"service": string(level),
				"error":   err.Error(),
			})
			continue
		}
		currency := breakdown.Currency
		if currency == "" {
			currency = q.currency
		}
		rate := breakdown
		options = append(options, domain.QuoteOption{
			Method:      level,
			ServiceName: q.names[level],
			Amount:      breakdown.Total,
			Currency:    currency,
			ETA:         q.eta(zoneID, level),
			Breakdown:   &rate,
		})
	}

	return ShippingQuoteResult{ZoneID: zoneID, Packing: packing, Options: options}, nil
}

func (q *ShippingQuoter) rate(ctx context.Context, req RateRequest) (domain.RateBreakdown, error) {
	callCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.rates.Rate(callCtx, req)
}

func (q *ShippingQuoter) eta(zoneID string, level domain.ServiceLevel) domain.ETARange {
	if eta, ok := q.etas[rateKey{zone: zoneID, service: level}]; ok {
		return eta
	}
	return q.etas[rateKey{zone: domain.WildcardCountry, service: level}]
}

func insuredAmount(items []domain.PackableItem) int64 {
	var total int64
	for _, item := range items {
		if item.UnitValue > 0 && item.Quantity > 0 {
			total += item.UnitValue * int64(item.Quantity)
		}
	}
	return total
}
