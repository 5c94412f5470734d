package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atelierhq/quoting/internal/carriers"
	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/platform/config"
	"github.com/atelierhq/quoting/internal/repositories"
	"github.com/atelierhq/quoting/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Quotes services.QuoteService
	System services.SystemService
}

// Engine holds the pure quoting components built from configuration and tables.
type Engine struct {
	Packer    *services.Packer
	Zones     *services.ZoneResolver
	Rates     services.RateProvider
	Costs     *services.CostResolver
	Tax       *services.VATCalculator
	Shipping  *services.ShippingQuoter
	Assembler *services.QuoteAssembler
}

// Container wires repositories, engine components and services for runtime use.
type Container struct {
	Config       config.Config
	Tables       config.Tables
	Repositories repositories.Registry
	Engine       Engine
	Services     Services
}

type containerOptions struct {
	tables     *config.Tables
	publisher  services.PackingPlanPublisher
	metrics    services.QuoteMetrics
	logger     func(component string) func(context.Context, string, map[string]any)
	build      services.BuildInfo
	httpClient *http.Client
	clock      func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithTables supplies already loaded tables instead of reading Quote.TablesFile.
func WithTables(tables config.Tables) Option {
	return func(o *containerOptions) {
		o.tables = &tables
	}
}

// WithPackingPlanPublisher enables publishing packing plans from shipping option requests.
func WithPackingPlanPublisher(publisher services.PackingPlanPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithMetrics routes engine counters to the given recorder.
func WithMetrics(metrics services.QuoteMetrics) Option {
	return func(o *containerOptions) {
		o.metrics = metrics
	}
}

// WithEventLogger sets the factory producing per-component event loggers.
func WithEventLogger(factory func(component string) func(context.Context, string, map[string]any)) Option {
	return func(o *containerOptions) {
		o.logger = factory
	}
}

// WithBuildInfo sets the version reported by readiness checks.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithCarrierHTTPClient overrides the HTTP client used by the carrier rate provider.
func WithCarrierHTTPClient(client *http.Client) Option {
	return func(o *containerOptions) {
		o.httpClient = client
	}
}

// WithClock overrides the quote clock.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = func(string) func(context.Context, string, map[string]any) {
			return func(context.Context, string, map[string]any) {}
		}
	}

	var tables config.Tables
	if options.tables != nil {
		tables = *options.tables
	} else {
		loaded, err := config.LoadTables(cfg.Quote.TablesFile)
		if err != nil {
			return nil, err
		}
		tables = loaded
	}

	engine, err := buildEngine(cfg.Quote, tables, options)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(ctx, reg, engine, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Tables:       tables,
		Repositories: reg,
		Engine:       engine,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildEngine(cfg config.QuoteConfig, tables config.Tables, opts containerOptions) (Engine, error) {
	zones, err := services.NewZoneResolver(zonesFromTables(tables))
	if err != nil {
		return Engine{}, fmt.Errorf("build zone resolver: %w", err)
	}

	tax, err := services.NewVATCalculator(cfg.OriginCountry, vatTableFromTables(tables))
	if err != nil {
		return Engine{}, fmt.Errorf("build tax calculator: %w", err)
	}

	rates, err := buildRateProvider(cfg, tables, opts)
	if err != nil {
		return Engine{}, err
	}

	packer := services.NewPacker(catalogFromTables(tables))
	shipping, err := services.NewShippingQuoter(services.ShippingQuoterDeps{
		Packer:       packer,
		Zones:        zones,
		Rates:        rates,
		ETAs:         etasFromTables(tables),
		ServiceNames: serviceNamesFromTables(tables),
		Currency:     cfg.Currency,
		RateTimeout:  cfg.RateTimeout,
		Metrics:      opts.metrics,
		Logger:       opts.logger("shipping"),
	})
	if err != nil {
		return Engine{}, fmt.Errorf("build shipping quoter: %w", err)
	}

	costs := services.NewCostResolver(baseCostsFromTables(tables), services.CostResolverConfig{
		Currency:             cfg.Currency,
		DefaultMarkup:        cfg.DefaultMarkup,
		DefaultMinMargin:     cfg.MinMargin,
		DefaultPackagingCost: cfg.DefaultPackagingCost,
		DefaultRounding:      domain.RoundingStrategy(cfg.Rounding),
	})

	quoteLogger := opts.logger("quote")
	assembler, err := services.NewQuoteAssembler(services.QuoteAssemblerDeps{
		Costs:      costs,
		Campaigns:  services.NewCampaignEngine(cfg.CampaignMaxStack, quoteLogger),
		PriceRules: services.NewPriceRuleEngine(cfg.PriceRuleMaxStack, quoteLogger),
		Tax:        tax,
		Shipping: services.ShippingCharges{
			DomesticFlat:               cfg.Shipping.DomesticFlat,
			InternationalFlat:          cfg.Shipping.InternationalFlat,
			DomesticFreeThreshold:      cfg.Shipping.DomesticFreeThreshold,
			InternationalFreeThreshold: cfg.Shipping.InternationalFreeThreshold,
		},
		Currency: cfg.Currency,
		Now:      opts.clock,
		Metrics:  opts.metrics,
		Logger:   quoteLogger,
	})
	if err != nil {
		return Engine{}, fmt.Errorf("build quote assembler: %w", err)
	}

	return Engine{
		Packer:    packer,
		Zones:     zones,
		Rates:     rates,
		Costs:     costs,
		Tax:       tax,
		Shipping:  shipping,
		Assembler: assembler,
	}, nil
}

func buildRateProvider(cfg config.QuoteConfig, tables config.Tables, opts containerOptions) (services.RateProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.RateProvider)) {
	case config.RateProviderCarrier:
		provider, err := carriers.NewHTTPRateProvider(carriers.HTTPRateProviderConfig{
			Endpoint:   cfg.Carrier.Endpoint,
			APIKey:     cfg.Carrier.APIKey,
			Timeout:    cfg.Carrier.Timeout,
			MaxRetries: cfg.Carrier.MaxRetries,
			Client:     opts.httpClient,
			Logger:     opts.logger("carrier"),
		})
		if err != nil {
			return nil, fmt.Errorf("build carrier rate provider: %w", err)
		}
		return provider, nil
	case config.RateProviderInHouse, "":
		return services.NewInHouseRateProvider(rateTableFromTables(tables, cfg.Currency, cfg.InsuranceEnabled)), nil
	default:
		return nil, fmt.Errorf("unknown rate provider %q", cfg.RateProvider)
	}
}

func buildServices(_ context.Context, reg repositories.Registry, engine Engine, opts containerOptions) (Services, error) {
	var svc Services

	quoteSvc, err := services.NewQuoteService(services.QuoteServiceDeps{
		Campaigns:  reg.Campaigns(),
		PriceRules: reg.PriceRules(),
		Profiles:   reg.PricingProfiles(),
		Assembler:  engine.Assembler,
		Shipping:   engine.Shipping,
		Tax:        engine.Tax,
		Publisher:  opts.publisher,
		Clock:      opts.clock,
		Logger:     opts.logger("quote"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}
	svc.Quotes = quoteSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.build
		if build.StartedAt.IsZero() {
			build.StartedAt = opts.clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            opts.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
