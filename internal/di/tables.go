package di

import (
	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/platform/config"
)

func zonesFromTables(t config.Tables) []domain.ShippingZone {
	zones := make([]domain.ShippingZone, 0, len(t.Zones))
	for _, row := range t.Zones {
		zones = append(zones, domain.ShippingZone{
			ID:        row.ID,
			Countries: append([]string(nil), row.Countries...),
		})
	}
	return zones
}

func rateTableFromTables(t config.Tables, currency string, insurance bool) domain.RateTable {
	table := domain.RateTable{
		Currency:   currency,
		Rows:       make([]domain.RateRow, 0, len(t.Rates)),
		Surcharges: make([]domain.ZoneSurcharge, 0, len(t.Surcharges)),
		Insurance: domain.InsurancePolicy{
			Enabled:     insurance && t.Insurance.BasisPoints > 0,
			BasisPoints: t.Insurance.BasisPoints,
		},
	}
	for _, row := range t.Rates {
		table.Rows = append(table.Rows, domain.RateRow{
			ZoneID:       row.Zone,
			Service:      domain.ServiceLevel(row.Service),
			FirstKg:      row.FirstKg,
			AdditionalKg: row.AdditionalKg,
		})
	}
	for _, row := range t.Surcharges {
		table.Surcharges = append(table.Surcharges, domain.ZoneSurcharge{
			ZoneID:             row.Zone,
			Oversize:           row.Oversize,
			SignatureFee:       row.SignatureFee,
			SignatureThreshold: row.SignatureThreshold,
		})
	}
	return table
}

func etasFromTables(t config.Tables) []domain.ETAEntry {
	entries := make([]domain.ETAEntry, 0, len(t.ETAs))
	for _, row := range t.ETAs {
		entries = append(entries, domain.ETAEntry{
			ZoneID:  row.Zone,
			Service: domain.ServiceLevel(row.Service),
			ETA:     domain.ETARange{MinDays: row.MinDays, MaxDays: row.MaxDays},
		})
	}
	return entries
}

func serviceNamesFromTables(t config.Tables) map[domain.ServiceLevel]string {
	names := make(map[domain.ServiceLevel]string, len(t.ServiceNames))
	for level, name := range t.ServiceNames {
		names[domain.ServiceLevel(level)] = name
	}
	return names
}

func catalogFromTables(t config.Tables) domain.PackagingCatalog {
	catalog := domain.PackagingCatalog{
		Boxes: make([]domain.BoxTemplate, 0, len(t.Packaging.Boxes)),
		Tubes: make([]domain.TubeTemplate, 0, len(t.Packaging.Tubes)),
	}
	for _, box := range t.Packaging.Boxes {
		catalog.Boxes = append(catalog.Boxes, domain.BoxTemplate{
			ReferenceID:   box.ID,
			InnerLengthCm: box.LengthCm,
			InnerWidthCm:  box.WidthCm,
			InnerHeightCm: box.HeightCm,
			MaxWeightKg:   box.MaxWeightKg,
		})
	}
	for _, tube := range t.Packaging.Tubes {
		catalog.Tubes = append(catalog.Tubes, domain.TubeTemplate{
			ReferenceID:     tube.ID,
			InnerLengthCm:   tube.LengthCm,
			InnerDiameterCm: tube.DiameterCm,
			MaxWeightKg:     tube.MaxWeightKg,
		})
	}
	return catalog
}

func baseCostsFromTables(t config.Tables) []domain.BaseCost {
	costs := make([]domain.BaseCost, 0, len(t.BaseCosts))
	for _, row := range t.BaseCosts {
		costs = append(costs, domain.BaseCost{
			Kind:          row.Kind,
			SizeLabel:     row.Size,
			BaseCostMinor: row.BaseCost,
			PackagingCost: row.PackagingCost,
			LeadDays:      row.LeadDays,
		})
	}
	return costs
}

func vatTableFromTables(t config.Tables) domain.VATTable {
	rates := make(map[string]float64, len(t.VAT.Rates))
	for country, rate := range t.VAT.Rates {
		rates[country] = rate
	}
	return domain.VATTable{
		Rates:     rates,
		EUMembers: append([]string(nil), t.VAT.EUMembers...),
	}
}
