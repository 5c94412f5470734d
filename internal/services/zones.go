package services

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// DefaultZoneID is returned when no configured zone matches a destination.
const DefaultZoneID = "INTL"

// ErrZoneTableInvalid is returned when the zone table cannot be resolved deterministically.
var ErrZoneTableInvalid = errors.New("zones: invalid zone table")

// ZoneResolver maps destination countries onto shipping zones by scanning zones in order.
type ZoneResolver struct {
	zones []domain.ShippingZone
}

// NewZoneResolver validates the table: zone ids are required and at most one zone may hold the wildcard.
func NewZoneResolver(zones []domain.ShippingZone) (*ZoneResolver, error) {
	resolved := make([]domain.ShippingZone, 0, len(zones))
	wildcards := 0
	for _, zone := range zones {
		id := strings.TrimSpace(zone.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: zone id is required", ErrZoneTableInvalid)
		}
		countries := make([]string, 0, len(zone.Countries))
		for _, country := range zone.Countries {
			code := strings.ToUpper(strings.TrimSpace(country))
			if code == domain.WildcardCountry {
				wildcards++
			}
			countries = append(countries, code)
		}
		resolved = append(resolved, domain.ShippingZone{ID: id, Countries: countries})
	}
	if wildcards > 1 {
		return nil, fmt.Errorf("%w: %d zones declare the wildcard country", ErrZoneTableInvalid, wildcards)
	}
	return &ZoneResolver{zones: resolved}, nil
}

// ZoneFor returns the first zone listing the country or the wildcard, else DefaultZoneID.
func (r *ZoneResolver) ZoneFor(country string) string {
	code := strings.ToUpper(strings.TrimSpace(country))
	if normalized, ok := NormalizeCountry(code); ok {
		code = normalized
	}
	for _, zone := range r.zones {
		for _, candidate := range zone.Countries {
			if candidate == domain.WildcardCountry || (code != "" && candidate == code) {
				return zone.ID
			}
		}
	}
	return DefaultZoneID
}

// NormalizeCountry canonicalises an ISO 3166 country code ("deu" and "de" both become "DE").
// Region groupings such as "EU" and unknown codes are rejected.
func NormalizeCountry(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	region, err := language.ParseRegion(trimmed)
	if err != nil || !region.IsCountry() {
		return "", false
	}
	return region.String(), true
}
