package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/repositories"
)

const quoteIDPrefix = "qt_"

var quoteTracer = otel.Tracer("github.com/atelierhq/quoting/internal/services")

type QuoteServiceDeps struct {
	Campaigns  repositories.CampaignRepository
	PriceRules repositories.PriceRuleRepository
	Profiles   repositories.PricingProfileRepository
	Assembler  *QuoteAssembler
	Shipping   *ShippingQuoter
	Tax        *VATCalculator
	Publisher  PackingPlanPublisher
	IDGen      func() string
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type quoteService struct {
	campaigns  repositories.CampaignRepository
	priceRules repositories.PriceRuleRepository
	profiles   repositories.PricingProfileRepository
	assembler  *QuoteAssembler
	shipping   *ShippingQuoter
	tax        *VATCalculator
	publisher  PackingPlanPublisher
	newID      func() string
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewQuoteService wires the engine to its rule sources. Rule repositories are optional; a
// missing repository contributes no rules.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Assembler == nil {
		return nil, errors.New("quote service: assembler is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("quote service: shipping quoter is required")
	}
	if deps.Tax == nil {
		return nil, errors.New("quote service: tax calculator is required")
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &quoteService{
		campaigns:  deps.Campaigns,
		priceRules: deps.PriceRules,
		profiles:   deps.Profiles,
		assembler:  deps.Assembler,
		shipping:   deps.Shipping,
		tax:        deps.Tax,
		publisher:  deps.Publisher,
		newID:      idGen,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type QuoteCommand struct {
	Item        QuoteItem
	Quantity    int
	Destination TaxDestination
}

type QuoteResult struct {
	QuoteID     string
	GeneratedAt time.Time
	Breakdown   QuoteBreakdown
}

func (s *quoteService) Quote(ctx context.Context, cmd QuoteCommand) (result QuoteResult, err error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.Quote", trace.WithAttributes(
		attribute.String("quote.artwork_id", cmd.Item.ArtworkID),
		attribute.String("quote.edition_id", cmd.Item.EditionID),
	))
	defer func() { endSpan(span, err) }()

	if cmd.Quantity <= 0 {
		return QuoteResult{}, fmt.Errorf("%w: quantity must be positive", ErrQuoteInvalidInput)
	}
	now := s.now()

	campaigns, err := s.loadCampaigns(ctx, now)
	if err != nil {
		return QuoteResult{}, err
	}
	rules, err := s.loadPriceRules(ctx, now)
	if err != nil {
		return QuoteResult{}, err
	}
	profile, err := s.loadProfile(ctx, cmd.Item.ArtistID)
	if err != nil {
		return QuoteResult{}, err
	}

	breakdown, err := s.assembler.GetQuote(ctx, GetQuoteCommand{
		Item:        cmd.Item,
		Quantity:    cmd.Quantity,
		Destination: cmd.Destination,
		Campaigns:   campaigns,
		PriceRules:  rules,
		Profile:     profile,
		Now:         now,
	})
	if err != nil {
		return QuoteResult{}, err
	}

	return QuoteResult{
		QuoteID:     quoteIDPrefix + s.newID(),
		GeneratedAt: now,
		Breakdown:   breakdown,
	}, nil
}

type ShippingOptionsCommand struct {
	OrderID     string
	Items       []PackableItem
	Country     string
	Method      domain.ServiceLevel
	PublishPlan bool
}

type ShippingOptionsResult struct {
	PlanID    string
	ZoneID    string
	Packing   PackingResult
	Options   []QuoteOption
	Published bool
}

func (s *quoteService) ShippingOptions(ctx context.Context, cmd ShippingOptionsCommand) (result ShippingOptionsResult, err error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.ShippingOptions", trace.WithAttributes(
		attribute.String("shipping.country", cmd.Country),
		attribute.Int("shipping.items", len(cmd.Items)),
	))
	defer func() { endSpan(span, err) }()

	quote, err := s.shipping.Quote(ctx, ShippingQuoteCommand{
		Items:   cmd.Items,
		Country: cmd.Country,
		Method:  cmd.Method,
	})
	if err != nil {
		return ShippingOptionsResult{}, err
	}
	span.SetAttributes(
		attribute.String("shipping.zone", quote.ZoneID),
		attribute.Int("shipping.options", len(quote.Options)),
	)

	result = ShippingOptionsResult{
		PlanID:  s.newID(),
		ZoneID:  quote.ZoneID,
		Packing: quote.Packing,
		Options: quote.Options,
	}
	if !cmd.PublishPlan {
		return result, nil
	}
	if s.publisher == nil {
		return ShippingOptionsResult{}, fmt.Errorf("%w: publisher not configured", ErrQuotePublishFailed)
	}

	message := buildPackingPlanMessage(result, strings.TrimSpace(cmd.OrderID), cmd.Country, s.now())
	if _, err := s.publisher.PublishPackingPlan(ctx, message); err != nil {
		s.logger(ctx, "packing_plan_publish_failed", map[string]any{"planId": result.PlanID, "error": err.Error()})
		return ShippingOptionsResult{}, fmt.Errorf("%w: %v", ErrQuotePublishFailed, err)
	}
	result.Published = true
	return result, nil
}

func (s *quoteService) Pack(ctx context.Context, items []PackableItem) (PackingResult, error) {
	if len(items) == 0 {
		return PackingResult{}, fmt.Errorf("%w: at least one item is required", ErrQuoteInvalidInput)
	}
	for _, item := range items {
		if item.Quantity <= 0 || item.WidthCm <= 0 || item.HeightCm <= 0 {
			return PackingResult{}, fmt.Errorf("%w: item %s requires positive quantity and dimensions", ErrQuoteInvalidInput, item.OrderItemID)
		}
	}
	_, span := quoteTracer.Start(ctx, "QuoteService.Pack")
	defer span.End()
	return s.shipping.packer.Pack(items), nil
}

func (s *quoteService) CalculateTax(_ context.Context, req TaxRequest) (TaxCalculation, error) {
	if len(req.Lines) == 0 {
		return TaxCalculation{}, fmt.Errorf("%w: at least one line is required", ErrQuoteInvalidInput)
	}
	if req.Shipping < 0 {
		return TaxCalculation{}, fmt.Errorf("%w: shipping cannot be negative", ErrQuoteInvalidInput)
	}
	for _, line := range req.Lines {
		if line.Net < 0 {
			return TaxCalculation{}, fmt.Errorf("%w: line %s net cannot be negative", ErrQuoteInvalidInput, line.LineID)
		}
	}
	return s.tax.Calculate(req), nil
}

func (s *quoteService) loadCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	if s.campaigns == nil {
		return nil, nil
	}
	campaigns, err := s.campaigns.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: campaigns: %v", ErrQuoteRulesUnavailable, err)
	}
	return campaigns, nil
}

func (s *quoteService) loadPriceRules(ctx context.Context, now time.Time) ([]domain.PriceRule, error) {
	if s.priceRules == nil {
		return nil, nil
	}
	rules, err := s.priceRules.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: price rules: %v", ErrQuoteRulesUnavailable, err)
	}
	return rules, nil
}

func (s *quoteService) loadProfile(ctx context.Context, artistID string) (*domain.ArtistPricingProfile, error) {
	artistID = strings.TrimSpace(artistID)
	if s.profiles == nil || artistID == "" {
		return nil, nil
	}
	profile, err := s.profiles.FindByArtistID(ctx, artistID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: pricing profile: %v", ErrQuoteRulesUnavailable, err)
	}
	return &profile, nil
}

func buildPackingPlanMessage(result ShippingOptionsResult, orderID, country string, now time.Time) PackingPlanMessage {
	message := PackingPlanMessage{
		PlanID:    result.PlanID,
		OrderID:   orderID,
		Country:   strings.ToUpper(strings.TrimSpace(country)),
		ZoneID:    result.ZoneID,
		Oversize:  result.Packing.Oversize,
		Packages:  make([]PackingPlanPackage, 0, len(result.Packing.Packages)),
		Options:   make([]PackingPlanOption, 0, len(result.Options)),
		CreatedAt: now,
	}
	for _, pkg := range result.Packing.Packages {
		items := make([]PackingPlanItem, 0, len(pkg.Items))
		for _, ref := range pkg.Items {
			items = append(items, PackingPlanItem{OrderItemID: ref.OrderItemID, Quantity: ref.Quantity})
		}
		message.Packages = append(message.Packages, PackingPlanPackage{
			Kind:        string(pkg.Kind),
			ReferenceID: pkg.ReferenceID,
			LengthCm:    pkg.LengthCm,
			WidthCm:     pkg.WidthCm,
			HeightCm:    pkg.HeightCm,
			WeightKg:    pkg.WeightKg,
			DimWeightKg: pkg.DimWeightKg,
			Oversize:    pkg.Oversize,
			Items:       items,
		})
	}
	for _, option := range result.Options {
		message.Options = append(message.Options, PackingPlanOption{
			Method:   string(option.Method),
			Amount:   option.Amount,
			Currency: option.Currency,
			MinDays:  option.ETA.MinDays,
			MaxDays:  option.ETA.MaxDays,
		})
	}
	return message
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
