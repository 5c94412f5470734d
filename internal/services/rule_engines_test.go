package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

var ruleNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func pctAdjustment(id string, pct float64, priority int, stackable bool) domain.Adjustment {
	return domain.Adjustment{ID: id, Name: id, Pct: ratePtr(pct), Priority: priority, Stackable: stackable, CreatedAt: ruleNow.Add(-time.Hour)}
}

func flatAdjustment(id string, amount int64, priority int, stackable bool) domain.Adjustment {
	return domain.Adjustment{ID: id, Name: id, AddMinor: int64Ptr(amount), Priority: priority, Stackable: stackable, CreatedAt: ruleNow.Add(-time.Hour)}
}

func TestCampaignThenPriceRuleCompound(t *testing.T) {
	campaigns := NewCampaignEngine(0, nil)
	rules := NewPriceRuleEngine(0, nil)
	target := domain.RuleTarget{ArtistID: "artist-1", ArtworkID: "art-1", EditionKind: "print", Medium: "print"}

	afterCampaigns := campaigns.Apply(context.Background(), 200, []domain.Campaign{
		{Adjustment: pctAdjustment("spring", -0.1, 1, true), Scope: domain.GlobalScope{}},
	}, target, ruleNow)
	if afterCampaigns.Price != 180 {
		t.Fatalf("expected 180 after campaigns, got %d", afterCampaigns.Price)
	}

	afterRules := rules.Apply(context.Background(), afterCampaigns.Price, []domain.PriceRule{
		{Adjustment: pctAdjustment("artwork-sale", -0.2, 1, true), Scope: domain.ArtworkScope{ArtworkID: "art-1"}},
	}, target, ruleNow)
	if afterRules.Price != 144 {
		t.Fatalf("expected 144 after price rules, got %d", afterRules.Price)
	}
	if afterRules.Applied[0].Delta != -36 || afterRules.Applied[0].Source != domain.RuleSourcePriceRule {
		t.Fatalf("unexpected applied rule: %+v", afterRules.Applied[0])
	}
}

func TestCampaignEngineApply(t *testing.T) {
	target := domain.RuleTarget{ArtistID: "artist-1", ArtworkID: "art-1", EditionKind: "print", Medium: "print"}
	expired := pctAdjustment("expired", -0.5, 0, true)
	expired.EndsAt = timePtr(ruleNow.Add(-time.Minute))

	cases := []struct {
		name      string
		maxStack  int
		campaigns []domain.Campaign
		wantPrice int64
		wantIDs   []string
	}{
		{
			name: "priority order and scope filtering",
			campaigns: []domain.Campaign{
				{Adjustment: flatAdjustment("artist-flat", -500, 2, true), Scope: domain.ArtistScope{ArtistID: "artist-1"}},
				{Adjustment: pctAdjustment("global", -0.1, 1, true), Scope: domain.GlobalScope{}},
				{Adjustment: pctAdjustment("oil-only", -0.3, 0, true), Scope: domain.MediumScope{Medium: "oil"}},
				{Adjustment: expired, Scope: domain.GlobalScope{}},
			},
			wantPrice: 8500,
			wantIDs:   []string{"global", "artist-flat"},
		},
		{
			name: "non stackable ends the run",
			campaigns: []domain.Campaign{
				{Adjustment: pctAdjustment("exclusive", -0.2, 1, false), Scope: domain.EditionKindScope{Kind: "PRINT"}},
				{Adjustment: pctAdjustment("later", -0.1, 2, true), Scope: domain.GlobalScope{}},
			},
			wantPrice: 8000,
			wantIDs:   []string{"exclusive"},
		},
		{
			name:     "max stack limits applied rules",
			maxStack: 1,
			campaigns: []domain.Campaign{
				{Adjustment: pctAdjustment("zero", 0, 0, true), Scope: domain.GlobalScope{}},
				{Adjustment: pctAdjustment("first", -0.1, 1, true), Scope: domain.GlobalScope{}},
				{Adjustment: pctAdjustment("second", -0.1, 2, true), Scope: domain.GlobalScope{}},
			},
			wantPrice: 9000,
			wantIDs:   []string{"first"},
		},
		{
			name:     "negative max stack is unbounded",
			maxStack: -1,
			campaigns: []domain.Campaign{
				{Adjustment: flatAdjustment("a", -100, 1, true), Scope: domain.GlobalScope{}},
				{Adjustment: flatAdjustment("b", -100, 2, true), Scope: domain.GlobalScope{}},
				{Adjustment: flatAdjustment("c", -100, 3, true), Scope: domain.GlobalScope{}},
				{Adjustment: flatAdjustment("d", -100, 4, true), Scope: domain.GlobalScope{}},
			},
			wantPrice: 9600,
			wantIDs:   []string{"a", "b", "c", "d"},
		},
		{
			name: "discount cap",
			campaigns: []domain.Campaign{
				{Adjustment: domain.Adjustment{ID: "capped", Pct: ratePtr(-0.5), MaxDiscountMinor: int64Ptr(300), Stackable: true}, Scope: domain.GlobalScope{}},
			},
			wantPrice: 9700,
			wantIDs:   []string{"capped"},
		},
		{
			name: "price never drops below zero",
			campaigns: []domain.Campaign{
				{Adjustment: flatAdjustment("huge", -50000, 1, true), Scope: domain.GlobalScope{}},
				{Adjustment: pctAdjustment("after", -0.1, 2, true), Scope: domain.GlobalScope{}},
			},
			wantPrice: 0,
			wantIDs:   []string{"huge"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var events int
			engine := NewCampaignEngine(tc.maxStack, func(_ context.Context, event string, _ map[string]any) {
				if event == "pricing_rule_applied" {
					events++
				}
			})
			result := engine.Apply(context.Background(), 10000, tc.campaigns, target, ruleNow)
			if result.Price != tc.wantPrice {
				t.Fatalf("expected price %d, got %d", tc.wantPrice, result.Price)
			}
			if len(result.Applied) != len(tc.wantIDs) {
				t.Fatalf("expected applied %v, got %+v", tc.wantIDs, result.Applied)
			}
			for i, id := range tc.wantIDs {
				if result.Applied[i].ID != id || result.Applied[i].Source != domain.RuleSourceCampaign {
					t.Fatalf("expected %s at position %d, got %+v", id, i, result.Applied[i])
				}
			}
			if result.Delta() != result.Price-10000 {
				t.Fatalf("delta %d does not reconcile with price %d", result.Delta(), result.Price)
			}
			if events != len(tc.wantIDs) {
				t.Fatalf("expected %d log events, got %d", len(tc.wantIDs), events)
			}
		})
	}
}

func TestCampaignEngineTieBreaks(t *testing.T) {
	older := pctAdjustment("b-older", -0.1, 1, true)
	older.CreatedAt = ruleNow.Add(-48 * time.Hour)
	newerA := pctAdjustment("a-newer", -0.1, 1, true)
	newerB := pctAdjustment("b-newer", -0.1, 1, true)

	eligible := NewCampaignEngine(0, nil).Eligible([]domain.Campaign{
		{Adjustment: newerB, Scope: domain.GlobalScope{}},
		{Adjustment: newerA, Scope: domain.GlobalScope{}},
		{Adjustment: older, Scope: domain.GlobalScope{}},
	}, domain.RuleTarget{}, ruleNow)

	want := []string{"b-older", "a-newer", "b-newer"}
	for i, id := range want {
		if eligible[i].ID != id {
			t.Fatalf("expected %v, got %s at %d", want, eligible[i].ID, i)
		}
	}
}

func TestAdjustmentWindowIsInclusive(t *testing.T) {
	adj := domain.Adjustment{StartsAt: timePtr(ruleNow), EndsAt: timePtr(ruleNow)}
	if !adj.ActiveAt(ruleNow) {
		t.Fatal("expected window bounds to be inclusive")
	}
	if adj.ActiveAt(ruleNow.Add(time.Second)) {
		t.Fatal("expected adjustment to expire after EndsAt")
	}
}

func TestPriceRuleScopeMatches(t *testing.T) {
	physical := domain.RuleTarget{ArtworkID: "art-1", EditionID: "ed-1", Medium: "photo"}
	digital := domain.RuleTarget{ArtworkID: "art-1", Medium: "photo", Digital: true}

	cases := []struct {
		name   string
		scope  domain.PriceRuleScope
		target domain.RuleTarget
		want   bool
	}{
		{"global", domain.GlobalScope{}, physical, true},
		{"medium case insensitive", domain.MediumScope{Medium: "PHOTO"}, physical, true},
		{"edition", domain.EditionScope{EditionID: "ed-1"}, physical, true},
		{"other edition", domain.EditionScope{EditionID: "ed-2"}, physical, false},
		{"digital medium on physical", domain.DigitalMediumScope{Medium: "photo"}, physical, false},
		{"digital medium on digital", domain.DigitalMediumScope{Medium: "photo"}, digital, true},
		{"empty artwork scope", domain.ArtworkScope{}, physical, false},
		{"nil scope", nil, physical, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PriceRuleScopeMatches(tc.scope, tc.target); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
