package domain

import "math"

// ItemKind classifies a purchasable item for packing and cost lookups.
type ItemKind string

const (
	ItemKindOriginal ItemKind = "original"
	ItemKindPrint    ItemKind = "print"
	ItemKindOther    ItemKind = "other"
)

// PackagingKind identifies the physical container family.
type PackagingKind string

const (
	PackagingBox  PackagingKind = "box"
	PackagingTube PackagingKind = "tube"
)

// ServiceLevel enumerates the shipping speeds offered at checkout.
type ServiceLevel string

const (
	ServiceStandard ServiceLevel = "STANDARD"
	ServiceExpress  ServiceLevel = "EXPRESS"
)

// ServiceLevels lists every service level in the order options are presented.
var ServiceLevels = []ServiceLevel{ServiceStandard, ServiceExpress}

// PackableItem is one order line as seen by the packer.
type PackableItem struct {
	OrderItemID        string
	Kind               ItemKind
	Quantity           int
	WidthCm            float64
	HeightCm           float64
	DepthCm            *float64
	Framed             bool
	WeightKg           *float64
	PreferredPackaging PackagingKind
	UnitValue          int64
}

// PackedItemRef records how many units of an order line travel in a package.
type PackedItemRef struct {
	OrderItemID string
	Quantity    int
}

type PackedPackage struct {
	Kind        PackagingKind
	ReferenceID string
	LengthCm    float64
	WidthCm     float64
	HeightCm    float64
	WeightKg    float64
	DimWeightKg float64
	Oversize    bool
	Items       []PackedItemRef
}

// BillableWeightKg returns the larger of physical and dimensional weight.
func (p PackedPackage) BillableWeightKg() float64 {
	return math.Max(p.WeightKg, p.DimWeightKg)
}

type PackingResult struct {
	Packages         []PackedPackage
	Oversize         bool
	TotalWeightKg    float64
	TotalDimWeightKg float64
}

// BillableWeightKg sums the billable weight of every package.
func (r PackingResult) BillableWeightKg() float64 {
	var total float64
	for _, pkg := range r.Packages {
		total += pkg.BillableWeightKg()
	}
	return total
}

// BoxTemplate is a catalog box measured on its inner dimensions.
type BoxTemplate struct {
	ReferenceID   string
	InnerLengthCm float64
	InnerWidthCm  float64
	InnerHeightCm float64
	MaxWeightKg   float64
}

// TubeTemplate is a catalog tube measured on its inner length and diameter.
type TubeTemplate struct {
	ReferenceID     string
	InnerLengthCm   float64
	InnerDiameterCm float64
	MaxWeightKg     float64
}

type PackagingCatalog struct {
	Boxes []BoxTemplate
	Tubes []TubeTemplate
}

// WildcardCountry matches every destination in a zone definition.
const WildcardCountry = "*"

type ShippingZone struct {
	ID        string
	Countries []string
}

// RateRow prices a (zone, service) pair.
type RateRow struct {
	ZoneID       string
	Service      ServiceLevel
	FirstKg      int64
	AdditionalKg int64
}

// ZoneSurcharge holds the flat per-zone fees. Zero amounts are treated as not configured.
type ZoneSurcharge struct {
	ZoneID             string
	Oversize           int64
	SignatureFee       int64
	SignatureThreshold int64
}

type InsurancePolicy struct {
	Enabled     bool
	BasisPoints int64
}

type RateTable struct {
	Currency   string
	Rows       []RateRow
	Surcharges []ZoneSurcharge
	Insurance  InsurancePolicy
}

// RateBreakdown itemises a carrier price. Absent components stay nil.
type RateBreakdown struct {
	Base              int64
	OversizeSurcharge *int64
	SignatureFee      *int64
	InsuranceFee      *int64
	Total             int64
	Currency          string
}

// ETARange is a delivery estimate in business days.
type ETARange struct {
	MinDays int
	MaxDays int
}

// ETAEntry keys a delivery estimate by zone and service. ZoneID "*" acts as a fallback.
type ETAEntry struct {
	ZoneID  string
	Service ServiceLevel
	ETA     ETARange
}

type QuoteOption struct {
	Method      ServiceLevel
	ServiceName string
	Amount      int64
	Currency    string
	ETA         ETARange
	Breakdown   *RateBreakdown
}
