package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// ErrRateUnavailable signals that no rate exists for the requested zone and service.
var ErrRateUnavailable = errors.New("rate engine: no rate available for zone and service")

// RateRequest is the input shared by every rate provider.
type RateRequest struct {
	ZoneID        string
	Service       domain.ServiceLevel
	Packages      []domain.PackedPackage
	InsuredAmount int64
	Currency      string
}

// BillableWeightKg sums the billable weight of the request's packages.
func (r RateRequest) BillableWeightKg() float64 {
	return domain.PackingResult{Packages: r.Packages}.BillableWeightKg()
}

// Oversize reports whether any package in the request is oversize.
func (r RateRequest) Oversize() bool {
	for _, pkg := range r.Packages {
		if pkg.Oversize {
			return true
		}
	}
	return false
}

// RateProvider prices a shipment for one service level.
type RateProvider interface {
	Rate(ctx context.Context, req RateRequest) (domain.RateBreakdown, error)
}

type rateKey struct {
	zone    string
	service domain.ServiceLevel
}

// InHouseRateProvider prices shipments from the static rate table.
type InHouseRateProvider struct {
	currency   string
	rows       map[rateKey]domain.RateRow
	surcharges map[string]domain.ZoneSurcharge
	insurance  domain.InsurancePolicy
}

var _ RateProvider = (*InHouseRateProvider)(nil)

// NewInHouseRateProvider indexes the rate table. Later rows win over earlier duplicates.
func NewInHouseRateProvider(table domain.RateTable) *InHouseRateProvider {
	p := &InHouseRateProvider{
		currency:   strings.ToUpper(strings.TrimSpace(table.Currency)),
		rows:       make(map[rateKey]domain.RateRow, len(table.Rows)),
		surcharges: make(map[string]domain.ZoneSurcharge, len(table.Surcharges)),
		insurance:  table.Insurance,
	}
	for _, row := range table.Rows {
		p.rows[rateKey{zone: row.ZoneID, service: row.Service}] = row
	}
	for _, surcharge := range table.Surcharges {
		p.surcharges[surcharge.ZoneID] = surcharge
	}
	return p
}

func (p *InHouseRateProvider) Rate(_ context.Context, req RateRequest) (domain.RateBreakdown, error) {
	row, ok := p.rows[rateKey{zone: req.ZoneID, service: req.Service}]
	if !ok {
		return domain.RateBreakdown{}, fmt.Errorf("%w: zone=%s service=%s", ErrRateUnavailable, req.ZoneID, req.Service)
	}

	weight := roundUpToHalfKg(req.BillableWeightKg())
	extraKg := math.Max(0, weight-1)
	base := row.FirstKg + roundHalfUp(decimal.NewFromInt(row.AdditionalKg).Mul(decimal.NewFromFloat(extraKg)))

	currency := p.currency
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	}
	breakdown := domain.RateBreakdown{Base: base, Currency: currency}

	surcharge, hasSurcharge := p.surcharges[req.ZoneID]
	if hasSurcharge && surcharge.Oversize > 0 && req.Oversize() {
		breakdown.OversizeSurcharge = int64Ptr(surcharge.Oversize)
	}
	if hasSurcharge && surcharge.SignatureFee > 0 && req.InsuredAmount > surcharge.SignatureThreshold {
		breakdown.SignatureFee = int64Ptr(surcharge.SignatureFee)
	}
	if p.insurance.Enabled && p.insurance.BasisPoints > 0 && req.InsuredAmount > 0 {
		breakdown.InsuranceFee = int64Ptr(basisPointsOf(req.InsuredAmount, p.insurance.BasisPoints))
	}

	breakdown.Total = SumRateComponents(breakdown)
	return breakdown, nil
}

// SumRateComponents adds the base and every present fee.
func SumRateComponents(b domain.RateBreakdown) int64 {
	total := b.Base
	for _, fee := range []*int64{b.OversizeSurcharge, b.SignatureFee, b.InsuranceFee} {
		if fee != nil {
			total += *fee
		}
	}
	return total
}

func roundUpToHalfKg(kg float64) float64 {
	return math.Ceil(kg*2) / 2
}

func int64Ptr(v int64) *int64 {
	return &v
}
