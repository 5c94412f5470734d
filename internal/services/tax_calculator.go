package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/atelierhq/quoting/internal/domain"
)

const (
	// ReverseChargeNote is printed on invoices for intra-EU B2B supplies.
	ReverseChargeNote = "Reverse charge: VAT to be accounted for by the recipient (Article 196, Council Directive 2006/112/EC)"
	// ExportNote is printed for supplies shipped outside the EU.
	ExportNote = "Outside scope of EU VAT"
)

// VATDecision is the treatment selected for one destination.
type VATDecision struct {
	Country       string
	Rate          float64
	ReverseCharge bool
	ZeroRated     bool
	Note          string
}

// VATCalculator applies EU VAT rules from the seller's origin country.
type VATCalculator struct {
	origin string
	rates  map[string]float64
	eu     map[string]struct{}
}

func NewVATCalculator(origin string, table domain.VATTable) (*VATCalculator, error) {
	code, ok := NormalizeCountry(origin)
	if !ok {
		return nil, fmt.Errorf("tax calculator: invalid origin country %q", origin)
	}
	calc := &VATCalculator{
		origin: code,
		rates:  make(map[string]float64, len(table.Rates)),
		eu:     make(map[string]struct{}, len(table.EUMembers)),
	}
	for country, rate := range table.Rates {
		calc.rates[strings.ToUpper(strings.TrimSpace(country))] = rate
	}
	for _, member := range table.EUMembers {
		calc.eu[strings.ToUpper(strings.TrimSpace(member))] = struct{}{}
	}
	if _, ok := calc.rates[calc.origin]; !ok {
		return nil, errors.New("tax calculator: origin country has no VAT rate")
	}
	return calc, nil
}

// Origin returns the seller's country.
func (c *VATCalculator) Origin() string {
	return c.origin
}

// Destination picks shipping, then billing, then origin. Malformed codes fall back to origin.
func (c *VATCalculator) Destination(dest domain.TaxDestination) string {
	for _, candidate := range []string{dest.ShippingCountry, dest.BillingCountry} {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		code, ok := NormalizeCountry(candidate)
		if !ok {
			return c.origin
		}
		return code
	}
	return c.origin
}

// Decide selects exactly one of export zero-rating, reverse charge or standard rate.
func (c *VATCalculator) Decide(dest domain.TaxDestination) VATDecision {
	country := c.Destination(dest)
	if country != c.origin && !c.inEU(country) {
		return VATDecision{Country: country, ZeroRated: true, Note: ExportNote}
	}
	if dest.IsBusiness && strings.TrimSpace(dest.VATID) != "" && country != c.origin {
		return VATDecision{Country: country, ReverseCharge: true, Note: ReverseChargeNote}
	}
	rate, ok := c.rates[country]
	if !ok {
		rate = c.rates[c.origin]
	}
	return VATDecision{Country: country, Rate: rate}
}

// UnitVAT returns the VAT owed on one net amount under the decision.
func (c *VATCalculator) UnitVAT(net int64, decision VATDecision) int64 {
	if decision.ReverseCharge || decision.ZeroRated || net <= 0 {
		return 0
	}
	return scaleMinor(net, decision.Rate)
}

// TaxLineInput is a net amount to tax.
type TaxLineInput struct {
	LineID string
	Net    int64
}

type TaxRequest struct {
	Destination domain.TaxDestination
	Lines       []TaxLineInput
	Shipping    int64
}

// Calculate rounds VAT per line. Shipping is carried into the total untaxed.
func (c *VATCalculator) Calculate(req TaxRequest) domain.TaxCalculation {
	decision := c.Decide(req.Destination)
	calc := domain.TaxCalculation{
		Country:       decision.Country,
		Rate:          decision.Rate,
		Shipping:      req.Shipping,
		Lines:         make([]domain.TaxLine, 0, len(req.Lines)),
		ReverseCharge: decision.ReverseCharge,
		ZeroRated:     decision.ZeroRated,
		Note:          decision.Note,
	}
	for _, line := range req.Lines {
		tax := c.UnitVAT(line.Net, decision)
		calc.Lines = append(calc.Lines, domain.TaxLine{
			LineID: line.LineID,
			Net:    line.Net,
			Rate:   decision.Rate,
			Tax:    tax,
		})
		calc.Subtotal += line.Net
		calc.Tax += tax
	}
	calc.Total = calc.Subtotal + calc.Tax + calc.Shipping
	return calc
}

func (c *VATCalculator) inEU(country string) bool {
	_, ok := c.eu[country]
	return ok
}
