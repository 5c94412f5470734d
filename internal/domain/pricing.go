package domain

// QuoteBreakdown captures the monetary result of quoting one item for a buyer.
type QuoteBreakdown struct {
	Currency      string
	Quantity      int
	Unit          UnitBreakdown
	Shipping      int64
	FreeShipping  bool
	Total         int64
	AppliedRules  []AppliedRule
	VATRate       float64
	VATCountry    string
	ReverseCharge bool
	TaxNote       string
}

// UnitBreakdown stores per-unit amounts. Discounts is signed: negative values reduce the price.
type UnitBreakdown struct {
	List      int64
	Discounts int64
	Net       int64
	VAT       int64
	Subtotal  int64
}

// TaxLine is a single taxable amount inside an order-level calculation.
type TaxLine struct {
	LineID string
	Net    int64
	Rate   float64
	Tax    int64
}

// TaxCalculation is the order-level VAT outcome. Total equals Subtotal + Tax + Shipping.
type TaxCalculation struct {
	Country       string
	Rate          float64
	Subtotal      int64
	Tax           int64
	Shipping      int64
	Total         int64
	Lines         []TaxLine
	ReverseCharge bool
	ZeroRated     bool
	Note          string
}

// TaxDestination carries the buyer attributes that drive VAT treatment.
type TaxDestination struct {
	ShippingCountry string
	BillingCountry  string
	IsBusiness      bool
	VATID           string
}

// VATTable lists standard rates by ISO country and the EU member set.
type VATTable struct {
	Rates     map[string]float64
	EUMembers []string
}
