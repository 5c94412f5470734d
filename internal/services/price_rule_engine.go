package services

import (
	"context"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// PriceRuleEngine applies standing price rules after campaigns. Its stack limit is independent.
type PriceRuleEngine struct {
	maxStack int
	logger   func(context.Context, string, map[string]any)
}

func NewPriceRuleEngine(maxStack int, logger func(context.Context, string, map[string]any)) *PriceRuleEngine {
	if maxStack == 0 {
		maxStack = DefaultMaxStack
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PriceRuleEngine{maxStack: maxStack, logger: logger}
}

func (e *PriceRuleEngine) Eligible(rules []domain.PriceRule, target domain.RuleTarget, now time.Time) []domain.PriceRule {
	eligible := make([]domain.PriceRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.ActiveAt(now) || !PriceRuleScopeMatches(rule.Scope, target) {
			continue
		}
		eligible = append(eligible, rule)
	}
	sortAdjustments(eligible, func(r domain.PriceRule) domain.Adjustment { return r.Adjustment })
	return eligible
}

func (e *PriceRuleEngine) Apply(ctx context.Context, price int64, rules []domain.PriceRule, target domain.RuleTarget, now time.Time) AdjustmentResult {
	eligible := e.Eligible(rules, target, now)
	ordered := make([]domain.Adjustment, 0, len(eligible))
	for _, rule := range eligible {
		ordered = append(ordered, rule.Adjustment)
	}
	result := applyAdjustments(price, ordered, e.maxStack, domain.RuleSourcePriceRule)
	for _, applied := range result.Applied {
		e.logger(ctx, "pricing_rule_applied", map[string]any{
			"source": string(applied.Source),
			"ruleId": applied.ID,
			"delta":  applied.Delta,
		})
	}
	return result
}

// PriceRuleScopeMatches reports whether a price rule scope covers the target.
func PriceRuleScopeMatches(scope domain.PriceRuleScope, target domain.RuleTarget) bool {
	switch s := scope.(type) {
	case domain.GlobalScope:
		return true
	case domain.MediumScope:
		return sameKey(s.Medium, target.Medium)
	case domain.ArtworkScope:
		return sameID(s.ArtworkID, target.ArtworkID)
	case domain.EditionScope:
		return sameID(s.EditionID, target.EditionID)
	case domain.DigitalMediumScope:
		return target.Digital && sameKey(s.Medium, target.Medium)
	default:
		return false
	}
}
