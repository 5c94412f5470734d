package domain

import "time"

// RuleSource distinguishes campaign adjustments from price rule adjustments.
type RuleSource string

const (
	RuleSourceCampaign  RuleSource = "campaign"
	RuleSourcePriceRule RuleSource = "price_rule"
)

// RuleTarget carries the attributes scopes are matched against.
type RuleTarget struct {
	ArtistID    string
	ArtworkID   string
	EditionID   string
	EditionKind string
	Medium      string
	Digital     bool
}

// CampaignScope is implemented by the scopes a campaign may target.
type CampaignScope interface {
	campaignScope()
}

// PriceRuleScope is implemented by the scopes a price rule may target.
type PriceRuleScope interface {
	priceRuleScope()
}

// GlobalScope matches every item.
type GlobalScope struct{}

type MediumScope struct {
	Medium string
}

type ArtistScope struct {
	ArtistID string
}

type ArtworkScope struct {
	ArtworkID string
}

type EditionKindScope struct {
	Kind string
}

type EditionScope struct {
	EditionID string
}

// DigitalMediumScope matches digital editions of the given medium.
type DigitalMediumScope struct {
	Medium string
}

func (GlobalScope) campaignScope()      {}
func (MediumScope) campaignScope()      {}
func (ArtistScope) campaignScope()      {}
func (ArtworkScope) campaignScope()     {}
func (EditionKindScope) campaignScope() {}

func (GlobalScope) priceRuleScope()        {}
func (MediumScope) priceRuleScope()        {}
func (ArtworkScope) priceRuleScope()       {}
func (EditionScope) priceRuleScope()       {}
func (DigitalMediumScope) priceRuleScope() {}

// Adjustment is the shared shape of campaigns and price rules.
// Pct is a fraction of the running price (-0.1 is ten percent off). AddMinor is a flat
// amount in minor units. MaxDiscountMinor caps the magnitude of a negative delta.
type Adjustment struct {
	ID               string
	Name             string
	Pct              *float64
	AddMinor         *int64
	MaxDiscountMinor *int64
	Stackable        bool
	Priority         int
	StartsAt         *time.Time
	EndsAt           *time.Time
	CreatedAt        time.Time
}

// ActiveAt reports whether t falls inside the inclusive validity window.
func (a Adjustment) ActiveAt(t time.Time) bool {
	if a.StartsAt != nil && t.Before(*a.StartsAt) {
		return false
	}
	if a.EndsAt != nil && t.After(*a.EndsAt) {
		return false
	}
	return true
}

type Campaign struct {
	Adjustment
	Scope CampaignScope
}

type PriceRule struct {
	Adjustment
	Scope PriceRuleScope
}

type AppliedRule struct {
	ID     string
	Name   string
	Delta  int64
	Source RuleSource
}

// RoundingStrategy controls the final rounding of a cost-derived price.
type RoundingStrategy string

const (
	RoundingNone  RoundingStrategy = "NONE"
	RoundingWhole RoundingStrategy = "WHOLE"
	RoundingEnd90 RoundingStrategy = "END_90"
	RoundingEnd99 RoundingStrategy = "END_99"
)

// Valid reports whether the strategy is a known value.
func (s RoundingStrategy) Valid() bool {
	switch s {
	case RoundingNone, RoundingWhole, RoundingEnd90, RoundingEnd99:
		return true
	}
	return false
}

// ArtistPricingProfile overrides the global markup policy for one artist.
type ArtistPricingProfile struct {
	ArtistID     string
	MarkupByKind map[string]float64
	PrintMarkup  *float64
	MinMarginPct *float64
	Rounding     RoundingStrategy
	UpdatedAt    time.Time
}

// BaseCost is one row of the production cost table keyed by (kind, size label).
type BaseCost struct {
	Kind          string
	SizeLabel     string
	BaseCostMinor int64
	PackagingCost int64
	LeadDays      int
}
