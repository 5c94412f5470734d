package services

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// ErrNoCostTableForSize is returned when the base-cost table has no row for (kind, size label).
var ErrNoCostTableForSize = errors.New("costing: no cost table for size")

type costKey struct {
	kind string
	size string
}

type CostResolverConfig struct {
	Currency             string
	DefaultMarkup        float64
	DefaultMinMargin     float64
	DefaultPackagingCost int64
	DefaultRounding      domain.RoundingStrategy
}

// CostResolver turns production costs into a sell price under the artist's markup policy.
type CostResolver struct {
	costs     map[costKey]domain.BaseCost
	cfg       CostResolverConfig
	majorUnit int64
}

func NewCostResolver(costs []domain.BaseCost, cfg CostResolverConfig) *CostResolver {
	index := make(map[costKey]domain.BaseCost, len(costs))
	for _, row := range costs {
		index[newCostKey(row.Kind, row.SizeLabel)] = row
	}
	if !cfg.DefaultRounding.Valid() {
		cfg.DefaultRounding = domain.RoundingNone
	}
	return &CostResolver{
		costs:     index,
		cfg:       cfg,
		majorUnit: minorPerMajor(cfg.Currency),
	}
}

type CostRequest struct {
	Kind          string
	SizeLabel     string
	PackagingCost *int64
	Profile       *domain.ArtistPricingProfile
}

type CostResolution struct {
	BaseCost      int64
	PackagingCost int64
	VariableCost  int64
	Markup        float64
	MinMargin     float64
	MarkupPrice   int64
	MinimumPrice  int64
	Rounding      domain.RoundingStrategy
	Price         int64
	LeadDays      int
}

// Resolve prices max(round(vc×(1+markup)), round(vc×(1+minMargin))) and applies the rounding strategy.
func (r *CostResolver) Resolve(req CostRequest) (CostResolution, error) {
	row, err := r.Lookup(req.Kind, req.SizeLabel)
	if err != nil {
		return CostResolution{}, err
	}

	packaging := r.packagingCost(row, req.PackagingCost)
	variable := row.BaseCostMinor + packaging
	markup := r.markupFor(req.Kind, req.Profile)
	minMargin := r.cfg.DefaultMinMargin
	rounding := r.cfg.DefaultRounding
	if req.Profile != nil {
		if req.Profile.MinMarginPct != nil {
			minMargin = *req.Profile.MinMarginPct
		}
		if req.Profile.Rounding.Valid() {
			rounding = req.Profile.Rounding
		}
	}

	markupPrice := markupMinor(variable, markup)
	minimumPrice := markupMinor(variable, minMargin)
	price := markupPrice
	if minimumPrice > price {
		price = minimumPrice
	}

	return CostResolution{
		BaseCost:      row.BaseCostMinor,
		PackagingCost: packaging,
		VariableCost:  variable,
		Markup:        markup,
		MinMargin:     minMargin,
		MarkupPrice:   markupPrice,
		MinimumPrice:  minimumPrice,
		Rounding:      rounding,
		Price:         r.round(price, rounding),
		LeadDays:      row.LeadDays,
	}, nil
}

// DefaultPrice applies the global default markup to the variable cost, without guard or rounding.
func (r *CostResolver) DefaultPrice(kind, sizeLabel string) (int64, error) {
	row, err := r.Lookup(kind, sizeLabel)
	if err != nil {
		return 0, err
	}
	return markupMinor(row.BaseCostMinor+r.packagingCost(row, nil), r.cfg.DefaultMarkup), nil
}

func (r *CostResolver) Lookup(kind, sizeLabel string) (domain.BaseCost, error) {
	row, ok := r.costs[newCostKey(kind, sizeLabel)]
	if !ok {
		return domain.BaseCost{}, fmt.Errorf("%w: kind=%s size=%s", ErrNoCostTableForSize, kind, sizeLabel)
	}
	return row, nil
}

func (r *CostResolver) packagingCost(row domain.BaseCost, override *int64) int64 {
	switch {
	case override != nil && *override >= 0:
		return *override
	case row.PackagingCost > 0:
		return row.PackagingCost
	default:
		return r.cfg.DefaultPackagingCost
	}
}

// markupFor resolves kind override, then generic print markup, then the global default.
func (r *CostResolver) markupFor(kind string, profile *domain.ArtistPricingProfile) float64 {
	if profile != nil {
		if markup, ok := profile.MarkupByKind[strings.ToLower(strings.TrimSpace(kind))]; ok {
			return markup
		}
		if profile.PrintMarkup != nil {
			return *profile.PrintMarkup
		}
	}
	return r.cfg.DefaultMarkup
}

func (r *CostResolver) round(price int64, strategy domain.RoundingStrategy) int64 {
	if strategy == domain.RoundingNone || price <= 0 {
		return price
	}
	whole := (price / r.majorUnit) * r.majorUnit
	switch strategy {
	case domain.RoundingEnd90:
		return whole + r.majorUnit*90/100
	case domain.RoundingEnd99:
		return whole + r.majorUnit*99/100
	default:
		return whole
	}
}

func newCostKey(kind, size string) costKey {
	return costKey{
		kind: strings.ToLower(strings.TrimSpace(kind)),
		size: strings.ToLower(strings.TrimSpace(size)),
	}
}

// minorPerMajor reads the ISO 4217 minor-unit scale, defaulting to cents.
func minorPerMajor(code string) int64 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 100
	}
	scale, _ := currency.Standard.Rounding(unit)
	result := int64(1)
	for i := 0; i < scale; i++ {
		result *= 10
	}
	return result
}
