package firestore

import (
	"strings"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/platform/textutil"
)

// adjustmentDocument is the stored shape shared by campaigns and price rules.
type adjustmentDocument struct {
	Name             string        `firestore:"name"`
	Pct              *float64      `firestore:"pct"`
	AddMinor         *int64        `firestore:"addMinor"`
	MaxDiscountMinor *int64        `firestore:"maxDiscountMinor"`
	Stackable        bool          `firestore:"stackable"`
	Priority         int           `firestore:"priority"`
	Active           bool          `firestore:"active"`
	StartsAt         *time.Time    `firestore:"startsAt"`
	EndsAt           *time.Time    `firestore:"endsAt"`
	CreatedAt        time.Time     `firestore:"createdAt"`
	Scope            scopeDocument `firestore:"scope"`
}

type scopeDocument struct {
	Type  string `firestore:"type"`
	Value string `firestore:"value"`
}

func (d adjustmentDocument) adjustment(id string) domain.Adjustment {
	adj := domain.Adjustment{
		ID:               id,
		Name:             textutil.PlainText(d.Name),
		Pct:              d.Pct,
		AddMinor:         d.AddMinor,
		MaxDiscountMinor: d.MaxDiscountMinor,
		Stackable:        d.Stackable,
		Priority:         d.Priority,
		CreatedAt:        d.CreatedAt.UTC(),
	}
	if d.StartsAt != nil {
		start := d.StartsAt.UTC()
		adj.StartsAt = &start
	}
	if d.EndsAt != nil {
		end := d.EndsAt.UTC()
		adj.EndsAt = &end
	}
	if adj.Name == "" {
		adj.Name = id
	}
	return adj
}

// campaignFromDocument returns false for a missing scope or one campaigns cannot carry.
func campaignFromDocument(id string, doc adjustmentDocument) (domain.Campaign, bool) {
	value := strings.TrimSpace(doc.Scope.Value)
	var scope domain.CampaignScope
	switch normalizeScopeType(doc.Scope.Type) {
	case "global":
		scope = domain.GlobalScope{}
	case "medium":
		scope = domain.MediumScope{Medium: value}
	case "artist":
		scope = domain.ArtistScope{ArtistID: value}
	case "artwork":
		scope = domain.ArtworkScope{ArtworkID: value}
	case "edition_kind":
		scope = domain.EditionKindScope{Kind: value}
	default:
		return domain.Campaign{}, false
	}
	return domain.Campaign{Adjustment: doc.adjustment(id), Scope: scope}, true
}

// priceRuleFromDocument returns false for a missing scope or one price rules cannot carry.
func priceRuleFromDocument(id string, doc adjustmentDocument) (domain.PriceRule, bool) {
	value := strings.TrimSpace(doc.Scope.Value)
	var scope domain.PriceRuleScope
	switch normalizeScopeType(doc.Scope.Type) {
	case "global":
		scope = domain.GlobalScope{}
	case "medium":
		scope = domain.MediumScope{Medium: value}
	case "artwork":
		scope = domain.ArtworkScope{ArtworkID: value}
	case "edition":
		scope = domain.EditionScope{EditionID: value}
	case "digital_medium":
		scope = domain.DigitalMediumScope{Medium: value}
	default:
		return domain.PriceRule{}, false
	}
	return domain.PriceRule{Adjustment: doc.adjustment(id), Scope: scope}, true
}

func normalizeScopeType(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(normalized, "-", "_")
}

type pricingProfileDocument struct {
	MarkupByKind map[string]float64 `firestore:"markupByKind"`
	PrintMarkup  *float64           `firestore:"printMarkup"`
	MinMarginPct *float64           `firestore:"minMarginPct"`
	Rounding     string             `firestore:"rounding"`
	UpdatedAt    time.Time          `firestore:"updatedAt"`
}

func pricingProfileFromDocument(artistID string, doc pricingProfileDocument) domain.ArtistPricingProfile {
	profile := domain.ArtistPricingProfile{
		ArtistID:     artistID,
		PrintMarkup:  doc.PrintMarkup,
		MinMarginPct: doc.MinMarginPct,
		Rounding:     domain.RoundingStrategy(strings.ToUpper(strings.TrimSpace(doc.Rounding))),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if len(doc.MarkupByKind) > 0 {
		profile.MarkupByKind = make(map[string]float64, len(doc.MarkupByKind))
		for kind, markup := range doc.MarkupByKind {
			profile.MarkupByKind[strings.ToLower(strings.TrimSpace(kind))] = markup
		}
	}
	if !profile.Rounding.Valid() {
		profile.Rounding = ""
	}
	return profile
}
