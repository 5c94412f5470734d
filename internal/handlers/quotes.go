package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/platform/httpx"
	"github.com/atelierhq/quoting/internal/services"
)

const maxQuoteRequestBody = 64 * 1024

// QuoteHandlers exposes the checkout quoting endpoints.
type QuoteHandlers struct {
	quotes services.QuoteService
}

// NewQuoteHandlers constructs quoting handlers backed by the quote service.
func NewQuoteHandlers(quotes services.QuoteService) *QuoteHandlers {
	return &QuoteHandlers{quotes: quotes}
}

// Routes registers quoting endpoints under the provided router.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quotes", h.createQuote)
	r.Post("/shipping/options", h.shippingOptions)
	r.Post("/shipping/pack", h.pack)
	r.Post("/tax/calculate", h.calculateTax)
}

type destinationRequest struct {
	ShippingCountry string `json:"shippingCountry" validate:"omitempty,max=8"`
	BillingCountry  string `json:"billingCountry" validate:"omitempty,max=8"`
	IsBusiness      bool   `json:"isBusiness"`
	VATID           string `json:"vatId" validate:"max=32"`
}

type salePriceRequest struct {
	Price    int64      `json:"price" validate:"gte=0"`
	StartsAt *time.Time `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt"`
}

type quoteItemRequest struct {
	ArtworkID     string            `json:"artworkId" validate:"required,max=128"`
	ArtistID      string            `json:"artistId" validate:"max=128"`
	EditionID     string            `json:"editionId" validate:"max=128"`
	EditionKind   string            `json:"editionKind" validate:"max=64"`
	Medium        string            `json:"medium" validate:"max=64"`
	Digital       bool              `json:"digital"`
	Kind          string            `json:"kind" validate:"omitempty,oneof=original print other"`
	SizeLabel     string            `json:"sizeLabel" validate:"max=32"`
	EditionPrice  *int64            `json:"editionPrice" validate:"omitempty,gte=0"`
	Sale          *salePriceRequest `json:"sale"`
	ArtworkPrice  *int64            `json:"artworkPrice" validate:"omitempty,gte=0"`
	PackagingCost *int64            `json:"packagingCost" validate:"omitempty,gte=0"`
}

type quoteRequest struct {
	Item        quoteItemRequest   `json:"item"`
	Quantity    int                `json:"quantity" validate:"required,min=1,max=1000"`
	Destination destinationRequest `json:"destination"`
}

type unitResponse struct {
	List      int64 `json:"list"`
	Discounts int64 `json:"discounts"`
	Net       int64 `json:"net"`
	VAT       int64 `json:"vat"`
	Subtotal  int64 `json:"subtotal"`
}

type appliedRuleResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Delta  int64  `json:"delta"`
	Source string `json:"source"`
}

type vatResponse struct {
	Rate          float64 `json:"rate"`
	Country       string  `json:"country"`
	ReverseCharge bool    `json:"reverseCharge"`
	Note          string  `json:"note,omitempty"`
}

type quoteResponse struct {
	QuoteID      string                `json:"quoteId"`
	GeneratedAt  string                `json:"generatedAt"`
	Currency     string                `json:"currency"`
	Quantity     int                   `json:"quantity"`
	Unit         unitResponse          `json:"unit"`
	Shipping     int64                 `json:"shipping"`
	FreeShipping bool                  `json:"freeShipping"`
	Total        int64                 `json:"total"`
	AppliedRules []appliedRuleResponse `json:"appliedRules"`
	VAT          vatResponse           `json:"vat"`
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if status, err := decodeRequest(r, maxQuoteRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	result, err := h.quotes.Quote(ctx, services.QuoteCommand{
		Item:        req.Item.toService(),
		Quantity:    req.Quantity,
		Destination: req.Destination.toDomain(),
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newQuoteResponse(result))
}

type packableItemRequest struct {
	ID                 string   `json:"id" validate:"required,max=128"`
	Kind               string   `json:"kind" validate:"omitempty,oneof=original print other"`
	Quantity           int      `json:"quantity" validate:"required,min=1,max=1000"`
	WidthCm            float64  `json:"widthCm" validate:"gt=0"`
	HeightCm           float64  `json:"heightCm" validate:"gt=0"`
	DepthCm            *float64 `json:"depthCm" validate:"omitempty,gt=0"`
	Framed             bool     `json:"framed"`
	WeightKg           *float64 `json:"weightKg" validate:"omitempty,gt=0"`
	PreferredPackaging string   `json:"preferredPackaging" validate:"omitempty,oneof=box tube"`
	UnitValue          int64    `json:"unitValue" validate:"gte=0"`
}

type shippingOptionsRequest struct {
	OrderID     string                `json:"orderId" validate:"max=128"`
	Country     string                `json:"country" validate:"required,max=8"`
	Method      string                `json:"method" validate:"omitempty,oneof=STANDARD EXPRESS standard express"`
	PublishPlan bool                  `json:"publishPlan"`
	Items       []packableItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type packRequest struct {
	Items []packableItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type packedItemResponse struct {
	OrderItemID string `json:"orderItemId"`
	Quantity    int    `json:"quantity"`
}

type packageResponse struct {
	Kind             string               `json:"kind"`
	ReferenceID      string               `json:"referenceId,omitempty"`
	LengthCm         float64              `json:"lengthCm"`
	WidthCm          float64              `json:"widthCm"`
	HeightCm         float64              `json:"heightCm"`
	WeightKg         float64              `json:"weightKg"`
	DimWeightKg      float64              `json:"dimWeightKg"`
	BillableWeightKg float64              `json:"billableWeightKg"`
	Oversize         bool                 `json:"oversize"`
	Items            []packedItemResponse `json:"items"`
}

type packingResponse struct {
	Packages         []packageResponse `json:"packages"`
	Oversize         bool              `json:"oversize"`
	TotalWeightKg    float64           `json:"totalWeightKg"`
	TotalDimWeightKg float64           `json:"totalDimWeightKg"`
	BillableWeightKg float64           `json:"billableWeightKg"`
}

type etaResponse struct {
	MinDays int `json:"minDays"`
	MaxDays int `json:"maxDays"`
}

type rateBreakdownResponse struct {
	Base              int64  `json:"base"`
	OversizeSurcharge *int64 `json:"oversizeSurcharge,omitempty"`
	SignatureFee      *int64 `json:"signatureFee,omitempty"`
	InsuranceFee      *int64 `json:"insuranceFee,omitempty"`
	Total             int64  `json:"total"`
	Currency          string `json:"currency"`
}

type shippingOptionResponse struct {
	Method      string                 `json:"method"`
	ServiceName string                 `json:"serviceName"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	ETA         etaResponse            `json:"eta"`
	Breakdown   *rateBreakdownResponse `json:"breakdown,omitempty"`
}

type shippingOptionsResponse struct {
	PlanID    string                   `json:"planId"`
	ZoneID    string                   `json:"zoneId"`
	Published bool                     `json:"published"`
	Packing   packingResponse          `json:"packing"`
	Options   []shippingOptionResponse `json:"options"`
}

func (h *QuoteHandlers) shippingOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req shippingOptionsRequest
	if status, err := decodeRequest(r, maxQuoteRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	result, err := h.quotes.ShippingOptions(ctx, services.ShippingOptionsCommand{
		OrderID:     strings.TrimSpace(req.OrderID),
		Items:       toPackableItems(req.Items),
		Country:     req.Country,
		Method:      domain.ServiceLevel(strings.ToUpper(strings.TrimSpace(req.Method))),
		PublishPlan: req.PublishPlan,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	options := make([]shippingOptionResponse, 0, len(result.Options))
	for _, option := range result.Options {
		options = append(options, newShippingOptionResponse(option))
	}
	httpx.WriteJSON(w, http.StatusOK, shippingOptionsResponse{
		PlanID:    result.PlanID,
		ZoneID:    result.ZoneID,
		Published: result.Published,
		Packing:   newPackingResponse(result.Packing),
		Options:   options,
	})
}

func (h *QuoteHandlers) pack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req packRequest
	if status, err := decodeRequest(r, maxQuoteRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	result, err := h.quotes.Pack(ctx, toPackableItems(req.Items))
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPackingResponse(result))
}

type taxLineRequest struct {
	LineID string `json:"lineId" validate:"required,max=128"`
	Net    int64  `json:"net" validate:"gte=0"`
}

type taxRequest struct {
	Destination destinationRequest `json:"destination"`
	Lines       []taxLineRequest   `json:"lines" validate:"required,min=1,max=200,dive"`
	Shipping    int64              `json:"shipping" validate:"gte=0"`
}

type taxLineResponse struct {
	LineID string  `json:"lineId"`
	Net    int64   `json:"net"`
	Rate   float64 `json:"rate"`
	Tax    int64   `json:"tax"`
}

type taxResponse struct {
	Country       string            `json:"country"`
	Rate          float64           `json:"rate"`
	Subtotal      int64             `json:"subtotal"`
	Tax           int64             `json:"tax"`
	Shipping      int64             `json:"shipping"`
	Total         int64             `json:"total"`
	Lines         []taxLineResponse `json:"lines"`
	ReverseCharge bool              `json:"reverseCharge"`
	ZeroRated     bool              `json:"zeroRated"`
	Note          string            `json:"note,omitempty"`
}

func (h *QuoteHandlers) calculateTax(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req taxRequest
	if status, err := decodeRequest(r, maxQuoteRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	lines := make([]services.TaxLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.TaxLineInput{LineID: strings.TrimSpace(line.LineID), Net: line.Net})
	}
	calc, err := h.quotes.CalculateTax(ctx, services.TaxRequest{
		Destination: req.Destination.toDomain(),
		Lines:       lines,
		Shipping:    req.Shipping,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	resp := taxResponse{
		Country:       calc.Country,
		Rate:          calc.Rate,
		Subtotal:      calc.Subtotal,
		Tax:           calc.Tax,
		Shipping:      calc.Shipping,
		Total:         calc.Total,
		Lines:         make([]taxLineResponse, 0, len(calc.Lines)),
		ReverseCharge: calc.ReverseCharge,
		ZeroRated:     calc.ZeroRated,
		Note:          calc.Note,
	}
	for _, line := range calc.Lines {
		resp.Lines = append(resp.Lines, taxLineResponse{LineID: line.LineID, Net: line.Net, Rate: line.Rate, Tax: line.Tax})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNoPriceAvailable), errors.Is(err, services.ErrNoCostTableForSize):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_quotable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrQuoteRulesUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rule_source_unavailable", "pricing rules are temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrQuotePublishFailed):
		httpx.WriteError(ctx, w, httpx.NewError("packing_plan_publish_failed", "packing plan could not be published", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "quote request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func (d destinationRequest) toDomain() domain.TaxDestination {
	return domain.TaxDestination{
		ShippingCountry: strings.TrimSpace(d.ShippingCountry),
		BillingCountry:  strings.TrimSpace(d.BillingCountry),
		IsBusiness:      d.IsBusiness,
		VATID:           strings.TrimSpace(d.VATID),
	}
}

func (i quoteItemRequest) toService() services.QuoteItem {
	item := services.QuoteItem{
		ArtworkID:     strings.TrimSpace(i.ArtworkID),
		ArtistID:      strings.TrimSpace(i.ArtistID),
		EditionID:     strings.TrimSpace(i.EditionID),
		EditionKind:   strings.TrimSpace(i.EditionKind),
		Medium:        strings.TrimSpace(i.Medium),
		Digital:       i.Digital,
		Kind:          itemKind(i.Kind),
		SizeLabel:     strings.TrimSpace(i.SizeLabel),
		EditionPrice:  i.EditionPrice,
		ArtworkPrice:  i.ArtworkPrice,
		PackagingCost: i.PackagingCost,
	}
	if i.Sale != nil {
		item.Sale = &services.SalePrice{
			Price:    i.Sale.Price,
			StartsAt: i.Sale.StartsAt,
			EndsAt:   i.Sale.EndsAt,
		}
	}
	return item
}

func itemKind(raw string) domain.ItemKind {
	switch domain.ItemKind(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ItemKindOriginal:
		return domain.ItemKindOriginal
	case domain.ItemKindPrint:
		return domain.ItemKindPrint
	default:
		return domain.ItemKindOther
	}
}

func toPackableItems(reqs []packableItemRequest) []domain.PackableItem {
	items := make([]domain.PackableItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, domain.PackableItem{
			OrderItemID:        strings.TrimSpace(req.ID),
			Kind:               itemKind(req.Kind),
			Quantity:           req.Quantity,
			WidthCm:            req.WidthCm,
			HeightCm:           req.HeightCm,
			DepthCm:            req.DepthCm,
			Framed:             req.Framed,
			WeightKg:           req.WeightKg,
			PreferredPackaging: domain.PackagingKind(req.PreferredPackaging),
			UnitValue:          req.UnitValue,
		})
	}
	return items
}

func newQuoteResponse(result services.QuoteResult) quoteResponse {
	b := result.Breakdown
	rules := make([]appliedRuleResponse, 0, len(b.AppliedRules))
	for _, rule := range b.AppliedRules {
		rules = append(rules, appliedRuleResponse{
			ID:     rule.ID,
			Name:   rule.Name,
			Delta:  rule.Delta,
			Source: string(rule.Source),
		})
	}
	return quoteResponse{
		QuoteID:     result.QuoteID,
		GeneratedAt: result.GeneratedAt.UTC().Format(time.RFC3339),
		Currency:    b.Currency,
		Quantity:    b.Quantity,
		Unit: unitResponse{
			List:      b.Unit.List,
			Discounts: b.Unit.Discounts,
			Net:       b.Unit.Net,
			VAT:       b.Unit.VAT,
			Subtotal:  b.Unit.Subtotal,
		},
		Shipping:     b.Shipping,
		FreeShipping: b.FreeShipping,
		Total:        b.Total,
		AppliedRules: rules,
		VAT: vatResponse{
			Rate:          b.VATRate,
			Country:       b.VATCountry,
			ReverseCharge: b.ReverseCharge,
			Note:          b.TaxNote,
		},
	}
}

func newPackingResponse(result domain.PackingResult) packingResponse {
	packages := make([]packageResponse, 0, len(result.Packages))
	for _, pkg := range result.Packages {
		items := make([]packedItemResponse, 0, len(pkg.Items))
		for _, ref := range pkg.Items {
			items = append(items, packedItemResponse{OrderItemID: ref.OrderItemID, Quantity: ref.Quantity})
		}
		packages = append(packages, packageResponse{
			Kind:             string(pkg.Kind),
			ReferenceID:      pkg.ReferenceID,
			LengthCm:         pkg.LengthCm,
			WidthCm:          pkg.WidthCm,
			HeightCm:         pkg.HeightCm,
			WeightKg:         pkg.WeightKg,
			DimWeightKg:      pkg.DimWeightKg,
			BillableWeightKg: pkg.BillableWeightKg(),
			Oversize:         pkg.Oversize,
			Items:            items,
		})
	}
	return packingResponse{
		Packages:         packages,
		Oversize:         result.Oversize,
		TotalWeightKg:    result.TotalWeightKg,
		TotalDimWeightKg: result.TotalDimWeightKg,
		BillableWeightKg: result.BillableWeightKg(),
	}
}

func newShippingOptionResponse(option domain.QuoteOption) shippingOptionResponse {
	resp := shippingOptionResponse{
		Method:      string(option.Method),
		ServiceName: option.ServiceName,
		Amount:      option.Amount,
		Currency:    option.Currency,
		ETA:         etaResponse{MinDays: option.ETA.MinDays, MaxDays: option.ETA.MaxDays},
	}
	if b := option.Breakdown; b != nil {
		resp.Breakdown = &rateBreakdownResponse{
			Base:              b.Base,
			OversizeSurcharge: b.OversizeSurcharge,
			SignatureFee:      b.SignatureFee,
			InsuranceFee:      b.InsuranceFee,
			Total:             b.Total,
			Currency:          b.Currency,
		}
	}
	return resp
}
