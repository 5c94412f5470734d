package services

import (
	"context"
	"strings"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// DefaultMaxStack bounds how many adjustments of one kind apply when no limit is configured.
const DefaultMaxStack = 3

// CampaignEngine applies marketing campaigns to a list price.
type CampaignEngine struct {
	maxStack int
	logger   func(context.Context, string, map[string]any)
}

func NewCampaignEngine(maxStack int, logger func(context.Context, string, map[string]any)) *CampaignEngine {
	if maxStack == 0 {
		maxStack = DefaultMaxStack
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CampaignEngine{maxStack: maxStack, logger: logger}
}

// Eligible returns the campaigns active at now whose scope matches the target, in application order.
func (e *CampaignEngine) Eligible(campaigns []domain.Campaign, target domain.RuleTarget, now time.Time) []domain.Campaign {
	eligible := make([]domain.Campaign, 0, len(campaigns))
	for _, campaign := range campaigns {
		if !campaign.ActiveAt(now) || !CampaignScopeMatches(campaign.Scope, target) {
			continue
		}
		eligible = append(eligible, campaign)
	}
	sortAdjustments(eligible, func(c domain.Campaign) domain.Adjustment { return c.Adjustment })
	return eligible
}

// Apply compounds eligible campaigns on price.
func (e *CampaignEngine) Apply(ctx context.Context, price int64, campaigns []domain.Campaign, target domain.RuleTarget, now time.Time) AdjustmentResult {
	eligible := e.Eligible(campaigns, target, now)
	ordered := make([]domain.Adjustment, 0, len(eligible))
	for _, campaign := range eligible {
		ordered = append(ordered, campaign.Adjustment)
	}
	result := applyAdjustments(price, ordered, e.maxStack, domain.RuleSourceCampaign)
	for _, applied := range result.Applied {
		e.logger(ctx, "pricing_rule_applied", map[string]any{
			"source": string(applied.Source),
			"ruleId": applied.ID,
			"delta":  applied.Delta,
		})
	}
	return result
}

// CampaignScopeMatches reports whether a campaign scope covers the target. Unknown scopes never match.
func CampaignScopeMatches(scope domain.CampaignScope, target domain.RuleTarget) bool {
	switch s := scope.(type) {
	case domain.GlobalScope:
		return true
	case domain.MediumScope:
		return sameKey(s.Medium, target.Medium)
	case domain.ArtistScope:
		return sameID(s.ArtistID, target.ArtistID)
	case domain.ArtworkScope:
		return sameID(s.ArtworkID, target.ArtworkID)
	case domain.EditionKindScope:
		return sameKey(s.Kind, target.EditionKind)
	default:
		return false
	}
}

func sameKey(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(b))
}

func sameID(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && a == strings.TrimSpace(b)
}
