package services

import (
	"math"
	"sort"

	domain "github.com/atelierhq/quoting/internal/domain"
)

const (
	// DefaultMaxSideCm is the longest side a carrier accepts before a package counts as oversize.
	DefaultMaxSideCm = 150.0
	// DefaultDimDivisor converts cm³ into volumetric kilograms.
	DefaultDimDivisor = 5000.0
)

// PackerOption customises a Packer.
type PackerOption func(*Packer)

// WithMaxSide overrides the oversize threshold.
func WithMaxSide(cm float64) PackerOption {
	return func(p *Packer) {
		if cm > 0 {
			p.maxSideCm = cm
		}
	}
}

// WithDimDivisor overrides the volumetric divisor.
func WithDimDivisor(divisor float64) PackerOption {
	return func(p *Packer) {
		if divisor > 0 {
			p.dimDivisor = divisor
		}
	}
}

// Packer assigns items to catalog boxes and tubes. It holds no mutable state once built.
type Packer struct {
	boxes      []domain.BoxTemplate
	tubes      []domain.TubeTemplate
	maxSideCm  float64
	dimDivisor float64
}

// NewPacker builds a packer over a copy of the catalog, smallest containers first.
func NewPacker(catalog domain.PackagingCatalog, opts ...PackerOption) *Packer {
	p := &Packer{
		boxes:      append([]domain.BoxTemplate(nil), catalog.Boxes...),
		tubes:      append([]domain.TubeTemplate(nil), catalog.Tubes...),
		maxSideCm:  DefaultMaxSideCm,
		dimDivisor: DefaultDimDivisor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	sort.SliceStable(p.boxes, func(i, j int) bool {
		return boxVolume(p.boxes[i]) < boxVolume(p.boxes[j])
	})
	sort.SliceStable(p.tubes, func(i, j int) bool {
		return tubeVolume(p.tubes[i]) < tubeVolume(p.tubes[j])
	})
	return p
}

type packEntry struct {
	item domain.PackableItem
	dims ItemDimensions
}

func (e packEntry) weight() float64 {
	return e.dims.WeightKg * float64(e.item.Quantity)
}

// Pack produces a packing plan. Items are never split: every unit of an order line travels in
// the same package. Tube packages come first, followed by boxes in the order they were opened.
// Pack never fails; items that fit no container end up in a best-effort oversize package.
func (p *Packer) Pack(items []domain.PackableItem) domain.PackingResult {
	var tubeEntries, boxEntries []packEntry
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		entry := packEntry{item: item, dims: ResolveDimensions(item)}
		if item.PreferredPackaging == domain.PackagingTube && !item.Framed {
			tubeEntries = append(tubeEntries, entry)
			continue
		}
		boxEntries = append(boxEntries, entry)
	}

	var packages []domain.PackedPackage
	for _, entry := range tubeEntries {
		tube, ok := p.smallestTube(entry.dims, entry.weight())
		if !ok {
			packages = append(packages, p.boxGroup([]packEntry{entry}))
			continue
		}
		packages = append(packages, p.tubePackage(tube, entry))
	}

	remaining := boxEntries
	for len(remaining) > 0 {
		var (
			group    []packEntry
			leftover []packEntry
			bbox     [3]float64
			weight   float64
		)
		for _, entry := range remaining {
			trial := maxDims(bbox, entry.dims.sorted())
			if _, ok := p.smallestBox(trial, weight+entry.weight()); ok {
				group = append(group, entry)
				bbox = trial
				weight += entry.weight()
				continue
			}
			leftover = append(leftover, entry)
		}
		if len(group) == 0 {
			// nothing left fits a box on its own
			group = leftover[:1]
			leftover = leftover[1:]
		}
		packages = append(packages, p.boxGroup(group))
		remaining = leftover
	}

	result := domain.PackingResult{Packages: packages}
	for _, pkg := range packages {
		result.TotalWeightKg += pkg.WeightKg
		result.TotalDimWeightKg += pkg.DimWeightKg
		if pkg.Oversize {
			result.Oversize = true
		}
	}
	return result
}

func (p *Packer) boxGroup(group []packEntry) domain.PackedPackage {
	var (
		bbox   [3]float64
		weight float64
		refs   = make([]domain.PackedItemRef, 0, len(group))
	)
	for _, entry := range group {
		bbox = maxDims(bbox, entry.dims.sorted())
		weight += entry.weight()
		refs = append(refs, domain.PackedItemRef{OrderItemID: entry.item.OrderItemID, Quantity: entry.item.Quantity})
	}

	pkg := domain.PackedPackage{
		Kind:     domain.PackagingBox,
		WeightKg: weight,
		Items:    refs,
	}
	box, fits := p.smallestBox(bbox, weight)
	if fits {
		pkg.ReferenceID = box.ReferenceID
		pkg.LengthCm, pkg.WidthCm, pkg.HeightCm = box.InnerLengthCm, box.InnerWidthCm, box.InnerHeightCm
	} else {
		// best effort: reference the smallest box holding the envelope, ignoring its weight limit
		if fallback, ok := p.smallestBox(bbox, 0); ok {
			pkg.ReferenceID = fallback.ReferenceID
		}
		pkg.LengthCm, pkg.WidthCm, pkg.HeightCm = bbox[0], bbox[1], bbox[2]
	}
	pkg.DimWeightKg = p.dimWeight(pkg.LengthCm, pkg.WidthCm, pkg.HeightCm)
	pkg.Oversize = !fits || p.exceedsMaxSide(pkg.LengthCm, pkg.WidthCm, pkg.HeightCm)
	return pkg
}

// tubePackage approximates the tube as a rectangular prism of length × diameter × diameter.
func (p *Packer) tubePackage(tube domain.TubeTemplate, entry packEntry) domain.PackedPackage {
	pkg := domain.PackedPackage{
		Kind:        domain.PackagingTube,
		ReferenceID: tube.ReferenceID,
		LengthCm:    tube.InnerLengthCm,
		WidthCm:     tube.InnerDiameterCm,
		HeightCm:    tube.InnerDiameterCm,
		WeightKg:    entry.weight(),
		Items:       []domain.PackedItemRef{{OrderItemID: entry.item.OrderItemID, Quantity: entry.item.Quantity}},
	}
	pkg.DimWeightKg = p.dimWeight(pkg.LengthCm, pkg.WidthCm, pkg.HeightCm)
	pkg.Oversize = p.exceedsMaxSide(pkg.LengthCm, pkg.WidthCm, pkg.HeightCm)
	return pkg
}

// smallestBox returns the smallest box holding the sorted envelope. A zero weight skips the weight check.
func (p *Packer) smallestBox(dims [3]float64, weight float64) (domain.BoxTemplate, bool) {
	for _, box := range p.boxes {
		inner := sortDesc(box.InnerLengthCm, box.InnerWidthCm, box.InnerHeightCm)
		if dims[0] > inner[0] || dims[1] > inner[1] || dims[2] > inner[2] {
			continue
		}
		if weight > 0 && box.MaxWeightKg > 0 && weight > box.MaxWeightKg {
			continue
		}
		return box, true
	}
	return domain.BoxTemplate{}, false
}

// smallestTube fits the item's long edge along the tube and its short edge across the diameter.
func (p *Packer) smallestTube(dims ItemDimensions, weight float64) (domain.TubeTemplate, bool) {
	for _, tube := range p.tubes {
		if dims.LengthCm > tube.InnerLengthCm || dims.WidthCm > tube.InnerDiameterCm {
			continue
		}
		if tube.MaxWeightKg > 0 && weight > tube.MaxWeightKg {
			continue
		}
		return tube, true
	}
	return domain.TubeTemplate{}, false
}

func (p *Packer) dimWeight(l, w, h float64) float64 {
	return math.Ceil(l * w * h / p.dimDivisor)
}

func (p *Packer) exceedsMaxSide(l, w, h float64) bool {
	return math.Max(l, math.Max(w, h)) > p.maxSideCm
}

func maxDims(a, b [3]float64) [3]float64 {
	return [3]float64{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
}

func boxVolume(b domain.BoxTemplate) float64 {
	return b.InnerLengthCm * b.InnerWidthCm * b.InnerHeightCm
}

func tubeVolume(t domain.TubeTemplate) float64 {
	return t.InnerLengthCm * t.InnerDiameterCm * t.InnerDiameterCm
}
