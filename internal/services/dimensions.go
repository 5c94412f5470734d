package services

import (
	"math"

	domain "github.com/atelierhq/quoting/internal/domain"
)

const (
	frameAllowanceCm       = 3.0
	defaultDepthCm         = 2.0
	framedDensityKgPerM2   = 4.0
	unframedDensityKgPerM2 = 0.8
	minUnitWeightKg        = 0.1
)

// ItemDimensions is the shipping envelope of a single unit. LengthCm >= WidthCm.
type ItemDimensions struct {
	LengthCm float64
	WidthCm  float64
	HeightCm float64
	WeightKg float64
}

// ResolveDimensions derives the physical envelope and unit weight of an item.
// Declared weights win; otherwise weight is estimated from the printed area.
func ResolveDimensions(item domain.PackableItem) ItemDimensions {
	length := math.Max(item.WidthCm, item.HeightCm)
	width := math.Min(item.WidthCm, item.HeightCm)

	depth := defaultDepthCm
	if item.DepthCm != nil && *item.DepthCm > 0 {
		depth = *item.DepthCm
	}
	if item.Framed {
		depth += frameAllowanceCm
	}

	var weight float64
	if item.WeightKg != nil && *item.WeightKg > 0 {
		weight = *item.WeightKg
	} else {
		areaM2 := (item.WidthCm / 100) * (item.HeightCm / 100)
		density := unframedDensityKgPerM2
		if item.Framed {
			density = framedDensityKgPerM2
		}
		weight = areaM2 * density
	}
	if weight < minUnitWeightKg {
		weight = minUnitWeightKg
	}

	return ItemDimensions{
		LengthCm: length,
		WidthCm:  width,
		HeightCm: depth,
		WeightKg: weight,
	}
}

func (d ItemDimensions) sorted() [3]float64 {
	return sortDesc(d.LengthCm, d.WidthCm, d.HeightCm)
}

func sortDesc(a, b, c float64) [3]float64 {
	if a < b {
		a, b = b, a
	}
	if b < c {
		b, c = c, b
	}
	if a < b {
		a, b = b, a
	}
	return [3]float64{a, b, c}
}
