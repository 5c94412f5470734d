package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// ShippingCharges are the flat checkout shipping charges and their free-shipping thresholds.
// A threshold of zero disables free shipping for that destination class.
type ShippingCharges struct {
	DomesticFlat               int64
	InternationalFlat          int64
	DomesticFreeThreshold      int64
	InternationalFreeThreshold int64
}

// QuoteAssembler produces the checkout breakdown for one item.
type QuoteAssembler struct {
	costs      *CostResolver
	campaigns  *CampaignEngine
	priceRules *PriceRuleEngine
	tax        *VATCalculator
	shipping   ShippingCharges
	currency   string
	now        func() time.Time
	metrics    QuoteMetrics
	logger     func(context.Context, string, map[string]any)
}

type QuoteAssemblerDeps struct {
	Costs      *CostResolver
	Campaigns  *CampaignEngine
	PriceRules *PriceRuleEngine
	Tax        *VATCalculator
	Shipping   ShippingCharges
	Currency   string
	Now        func() time.Time
	Metrics    QuoteMetrics
	Logger     func(context.Context, string, map[string]any)
}

func NewQuoteAssembler(deps QuoteAssemblerDeps) (*QuoteAssembler, error) {
	if deps.Costs == nil {
		return nil, errors.New("quote assembler: cost resolver is required")
	}
	if deps.Tax == nil {
		return nil, errors.New("quote assembler: tax calculator is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("quote assembler: currency is required")
	}
	campaigns := deps.Campaigns
	if campaigns == nil {
		campaigns = NewCampaignEngine(DefaultMaxStack, deps.Logger)
	}
	priceRules := deps.PriceRules
	if priceRules == nil {
		priceRules = NewPriceRuleEngine(DefaultMaxStack, deps.Logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopQuoteMetrics{}
	}

	return &QuoteAssembler{
		costs:      deps.Costs,
		campaigns:  campaigns,
		priceRules: priceRules,
		tax:        deps.Tax,
		shipping:   deps.Shipping,
		currency:   currency,
		now: func() time.Time {
			return now().UTC()
		},
		metrics: metrics,
		logger:  logger,
	}, nil
}

// SalePrice is a temporary edition price. Open bounds are nil.
type SalePrice struct {
	Price    int64
	StartsAt *time.Time
	EndsAt   *time.Time
}

func (s SalePrice) activeAt(t time.Time) bool {
	if s.StartsAt != nil && t.Before(*s.StartsAt) {
		return false
	}
	if s.EndsAt != nil && t.After(*s.EndsAt) {
		return false
	}
	return true
}

// QuoteItem describes the purchasable thing being quoted and every price source it offers.
type QuoteItem struct {
	ArtworkID     string
	ArtistID      string
	EditionID     string
	EditionKind   string
	Medium        string
	Digital       bool
	Kind          domain.ItemKind
	SizeLabel     string
	EditionPrice  *int64
	Sale          *SalePrice
	ArtworkPrice  *int64
	PackagingCost *int64
}

func (i QuoteItem) target() domain.RuleTarget {
	return domain.RuleTarget{
		ArtistID:    i.ArtistID,
		ArtworkID:   i.ArtworkID,
		EditionID:   i.EditionID,
		EditionKind: i.EditionKind,
		Medium:      i.Medium,
		Digital:     i.Digital,
	}
}

type GetQuoteCommand struct {
	Item        QuoteItem
	Quantity    int
	Destination domain.TaxDestination
	Campaigns   []domain.Campaign
	PriceRules  []domain.PriceRule
	Profile     *domain.ArtistPricingProfile
	Now         time.Time
}

// GetQuote resolves the unit list price, applies campaigns then price rules, adds VAT and
// checkout shipping. Shipping is charged once per quote and never for digital items.
func (a *QuoteAssembler) GetQuote(ctx context.Context, cmd GetQuoteCommand) (domain.QuoteBreakdown, error) {
	if cmd.Quantity <= 0 {
		return domain.QuoteBreakdown{}, fmt.Errorf("%w: quantity must be positive", ErrQuoteInvalidInput)
	}
	now := cmd.Now
	if now.IsZero() {
		now = a.now()
	}

	list, err := a.ListPrice(cmd.Item, cmd.Profile, now)
	if err != nil {
		return domain.QuoteBreakdown{}, err
	}

	target := cmd.Item.target()
	afterCampaigns := a.campaigns.Apply(ctx, list, cmd.Campaigns, target, now)
	afterRules := a.priceRules.Apply(ctx, afterCampaigns.Price, cmd.PriceRules, target, now)

	net := afterRules.Price
	decision := a.tax.Decide(cmd.Destination)
	vat := a.tax.UnitVAT(net, decision)
	subtotal := net + vat

	quantity := int64(cmd.Quantity)
	if subtotal > 0 && subtotal > math.MaxInt64/quantity {
		return domain.QuoteBreakdown{}, fmt.Errorf("%w: quote total overflow", ErrQuoteInvalidInput)
	}
	goods := subtotal * quantity

	shipping, free := a.shippingCharge(goods, decision.Country, cmd.Item.Digital)

	applied := make([]domain.AppliedRule, 0, len(afterCampaigns.Applied)+len(afterRules.Applied))
	applied = append(applied, afterCampaigns.Applied...)
	applied = append(applied, afterRules.Applied...)

	breakdown := domain.QuoteBreakdown{
		Currency: a.currency,
		Quantity: cmd.Quantity,
		Unit: domain.UnitBreakdown{
			List:      list,
			Discounts: net - list,
			Net:       net,
			VAT:       vat,
			Subtotal:  subtotal,
		},
		Shipping:      shipping,
		FreeShipping:  free,
		Total:         goods + shipping,
		AppliedRules:  applied,
		VATRate:       decision.Rate,
		VATCountry:    decision.Country,
		ReverseCharge: decision.ReverseCharge,
		TaxNote:       decision.Note,
	}

	a.metrics.QuoteAssembled(ctx, a.currency, decision.Country)
	a.logger(ctx, "quote_assembled", map[string]any{
		"artworkId":     cmd.Item.ArtworkID,
		"editionId":     cmd.Item.EditionID,
		"country":       decision.Country,
		"list":          list,
		"net":           net,
		"total":         breakdown.Total,
		"appliedRules":  len(applied),
		"reverseCharge": decision.ReverseCharge,
	})

	return breakdown, nil
}

// ListPrice resolves the unit price before adjustments. Sources are tried in order: edition
// price (or a lower active sale price), the cost resolver for sized prints (artist profile
// when present, global markup, margin and rounding otherwise), artwork price, and finally the
// cost table with the default markup.
func (a *QuoteAssembler) ListPrice(item QuoteItem, profile *domain.ArtistPricingProfile, now time.Time) (int64, error) {
	if item.EditionPrice != nil {
		price := *item.EditionPrice
		if price < 0 {
			return 0, fmt.Errorf("%w: edition price cannot be negative", ErrQuoteInvalidInput)
		}
		if sale := item.Sale; sale != nil && sale.Price >= 0 && sale.Price < price && sale.activeAt(now) {
			price = sale.Price
		}
		return price, nil
	}

	sizeLabel := strings.TrimSpace(item.SizeLabel)
	if item.Kind == domain.ItemKindPrint && sizeLabel != "" {
		resolution, err := a.costs.Resolve(CostRequest{
			Kind:          string(item.Kind),
			SizeLabel:     sizeLabel,
			PackagingCost: item.PackagingCost,
			Profile:       profile,
		})
		if err != nil {
			return 0, err
		}
		return resolution.Price, nil
	}

	if item.ArtworkPrice != nil {
		if *item.ArtworkPrice < 0 {
			return 0, fmt.Errorf("%w: artwork price cannot be negative", ErrQuoteInvalidInput)
		}
		return *item.ArtworkPrice, nil
	}

	if sizeLabel != "" {
		return a.costs.DefaultPrice(string(item.Kind), sizeLabel)
	}

	return 0, fmt.Errorf("%w: artwork=%s edition=%s", ErrNoPriceAvailable, item.ArtworkID, item.EditionID)
}

func (a *QuoteAssembler) shippingCharge(goods int64, country string, digital bool) (int64, bool) {
	if digital {
		return 0, false
	}
	flat, threshold := a.shipping.InternationalFlat, a.shipping.InternationalFreeThreshold
	if country == a.tax.Origin() {
		flat, threshold = a.shipping.DomesticFlat, a.shipping.DomesticFreeThreshold
	}
	if threshold > 0 && goods >= threshold {
		return 0, true
	}
	return flat, false
}
