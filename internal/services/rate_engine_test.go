package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/atelierhq/quoting/internal/domain"
)

func testRateTable(insurance bool) domain.RateTable {
	return domain.RateTable{
		Currency: "eur",
		Rows: []domain.RateRow{
			{ZoneID: "EU", Service: domain.ServiceStandard, FirstKg: 1395, AdditionalKg: 300},
			{ZoneID: "EU", Service: domain.ServiceExpress, FirstKg: 2495, AdditionalKg: 450},
		},
		Surcharges: []domain.ZoneSurcharge{
			{ZoneID: "EU", Oversize: 2500, SignatureFee: 450, SignatureThreshold: 50000},
		},
		Insurance: domain.InsurancePolicy{Enabled: insurance, BasisPoints: 150},
	}
}

func boxPackage(weight, dimWeight float64, oversize bool) domain.PackedPackage {
	return domain.PackedPackage{Kind: domain.PackagingBox, WeightKg: weight, DimWeightKg: dimWeight, Oversize: oversize}
}

func TestInHouseRateProviderRate(t *testing.T) {
	cases := []struct {
		name          string
		insurance     bool
		pkg           domain.PackedPackage
		insured       int64
		wantBase      int64
		wantOversize  int64
		wantSignature int64
		wantInsurance int64
		wantTotal     int64
	}{
		{
			name:      "dimensional weight drives base",
			pkg:       boxPackage(0.384, 17, false),
			insured:   7499,
			wantBase:  6195,
			wantTotal: 6195,
		},
		{
			name:      "weight rounds up to half kilogram",
			pkg:       boxPackage(1.2, 1, false),
			wantBase:  1545,
			wantTotal: 1545,
		},
		{
			name:         "oversize surcharge",
			pkg:          boxPackage(0.5, 1, true),
			wantBase:     1395,
			wantOversize: 2500,
			wantTotal:    3895,
		},
		{
			name:          "signature above threshold and insurance",
			insurance:     true,
			pkg:           boxPackage(1, 1, false),
			insured:       60000,
			wantBase:      1395,
			wantSignature: 450,
			wantInsurance: 900,
			wantTotal:     2745,
		},
		{
			name:          "insurance rounds half up",
			insurance:     true,
			pkg:           boxPackage(1, 1, false),
			insured:       7499,
			wantBase:      1395,
			wantInsurance: 112,
			wantTotal:     1507,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := NewInHouseRateProvider(testRateTable(tc.insurance))
			breakdown, err := provider.Rate(context.Background(), RateRequest{
				ZoneID:        "EU",
				Service:       domain.ServiceStandard,
				Packages:      []domain.PackedPackage{tc.pkg},
				InsuredAmount: tc.insured,
			})
			if err != nil {
				t.Fatalf("Rate returned error: %v", err)
			}
			if breakdown.Base != tc.wantBase {
				t.Fatalf("expected base %d, got %d", tc.wantBase, breakdown.Base)
			}
			assertFee(t, "oversize", breakdown.OversizeSurcharge, tc.wantOversize)
			assertFee(t, "signature", breakdown.SignatureFee, tc.wantSignature)
			assertFee(t, "insurance", breakdown.InsuranceFee, tc.wantInsurance)
			if breakdown.Total != tc.wantTotal {
				t.Fatalf("expected total %d, got %d", tc.wantTotal, breakdown.Total)
			}
			if breakdown.Currency != "EUR" {
				t.Fatalf("expected EUR, got %s", breakdown.Currency)
			}
		})
	}
}

func assertFee(t *testing.T, name string, got *int64, want int64) {
	t.Helper()
	if want == 0 {
		if got != nil {
			t.Fatalf("expected no %s fee, got %d", name, *got)
		}
		return
	}
	if got == nil || *got != want {
		t.Fatalf("expected %s fee %d, got %v", name, want, got)
	}
}

func TestInHouseRateProviderMissingRow(t *testing.T) {
	provider := NewInHouseRateProvider(testRateTable(false))
	_, err := provider.Rate(context.Background(), RateRequest{ZoneID: "INTL", Service: domain.ServiceStandard})
	if !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestSumRateComponents(t *testing.T) {
	fee := int64(100)
	got := SumRateComponents(domain.RateBreakdown{Base: 1000, SignatureFee: &fee, InsuranceFee: &fee})
	if got != 1200 {
		t.Fatalf("expected 1200, got %d", got)
	}
}
