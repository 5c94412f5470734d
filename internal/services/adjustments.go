package services

import (
	"sort"

	"github.com/shopspring/decimal"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// AdjustmentResult is the running price after a rule set was applied.
type AdjustmentResult struct {
	Price   int64
	Applied []domain.AppliedRule
}

// Delta sums the applied deltas.
func (r AdjustmentResult) Delta() int64 {
	var total int64
	for _, applied := range r.Applied {
		total += applied.Delta
	}
	return total
}

// sortAdjustments orders by priority, then creation time, then id.
func sortAdjustments[T any](items []T, adj func(T) domain.Adjustment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := adj(items[i]), adj(items[j])
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// applyAdjustments compounds ordered adjustments on the running price.
// Each delta is round(running × pct) + flat; discounts are capped by MaxDiscountMinor and
// never push the price below zero. Zero deltas do not count towards maxStack.
// A non-stackable adjustment that applies ends the run. maxStack <= 0 means unbounded.
func applyAdjustments(price int64, ordered []domain.Adjustment, maxStack int, source domain.RuleSource) AdjustmentResult {
	running := price
	var applied []domain.AppliedRule
	for _, adj := range ordered {
		if maxStack > 0 && len(applied) >= maxStack {
			break
		}
		delta := adjustmentDelta(running, adj)
		if delta == 0 {
			continue
		}
		if running+delta < 0 {
			delta = -running
			if delta == 0 {
				continue
			}
		}
		running += delta
		applied = append(applied, domain.AppliedRule{
			ID:     adj.ID,
			Name:   adj.Name,
			Delta:  delta,
			Source: source,
		})
		if !adj.Stackable {
			break
		}
	}
	return AdjustmentResult{Price: running, Applied: applied}
}

func adjustmentDelta(running int64, adj domain.Adjustment) int64 {
	var delta int64
	if adj.Pct != nil {
		delta += roundHalfUp(decimal.NewFromInt(running).Mul(decimal.NewFromFloat(*adj.Pct)))
	}
	if adj.AddMinor != nil {
		delta += *adj.AddMinor
	}
	if delta < 0 && adj.MaxDiscountMinor != nil && *adj.MaxDiscountMinor >= 0 && -delta > *adj.MaxDiscountMinor {
		delta = -*adj.MaxDiscountMinor
	}
	return delta
}
