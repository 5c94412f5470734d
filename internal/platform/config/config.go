package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultRateLimit    = 120

	defaultOriginCountry        = "NL"
	defaultCurrency             = "EUR"
	defaultMarkup               = 0.5
	defaultMinMargin            = 0.4
	defaultPackagingCost        = 500
	defaultRounding             = "NONE"
	defaultMaxStack             = 3
	defaultDomesticFlat         = 900
	defaultInternationalFlat    = 2500
	defaultDomesticThreshold    = 15000
	defaultInternationalFreeMin = 25000
	defaultRateProvider         = RateProviderInHouse
	defaultRateTimeout          = 2 * time.Second
	defaultCarrierTimeout       = 1500 * time.Millisecond
	defaultCarrierMaxRetries    = 2
)

const (
	// RateProviderInHouse prices shipments from the static tables file.
	RateProviderInHouse = "inhouse"
	// RateProviderCarrier prices shipments through the carrier HTTP API.
	RateProviderCarrier = "carrier"
)

var roundingStrategies = map[string]struct{}{"NONE": {}, "WHOLE": {}, "END_90": {}, "END_99": {}}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Secrets   SecretsConfig
	Quote     QuoteConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// RateLimit caps quote requests per client per minute. Zero disables the limit.
	RateLimit    int
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topic receiving packing plans. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	PackingPlanTopic string
}

// SecretsConfig points secret:// references at a Secret Manager project.
type SecretsConfig struct {
	ProjectID string
}

// QuoteConfig holds the pricing policy knobs applied by the quoting engine.
type QuoteConfig struct {
	OriginCountry        string
	Currency             string
	DefaultMarkup        float64
	MinMargin            float64
	DefaultPackagingCost int64
	Rounding             string
	CampaignMaxStack     int
	PriceRuleMaxStack    int
	Shipping             ShippingChargeConfig
	InsuranceEnabled     bool
	RateProvider         string
	RateTimeout          time.Duration
	Carrier              CarrierConfig
	TablesFile           string
}

// ShippingChargeConfig holds flat checkout shipping charges in minor units.
type ShippingChargeConfig struct {
	DomesticFlat               int64
	InternationalFlat          int64
	DomesticFreeThreshold      int64
	InternationalFreeThreshold int64
}

// CarrierConfig configures the carrier rate API.
type CarrierConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment after applying Load's precedence
// (dotenv < OS env < explicit map). main uses it to configure the secret resolver before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, environment
// variables and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	env := envLookup(values)

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RateLimit:    env.int("API_SERVER_RATE_LIMIT", defaultRateLimit),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.str("API_PUBSUB_PROJECT_ID", ""),
			PackingPlanTopic: env.str("API_PUBSUB_PACKING_PLAN_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID: env.str("API_SECRETS_PROJECT_ID", ""),
		},
		Quote: QuoteConfig{
			OriginCountry:        strings.ToUpper(env.str("QUOTE_ORIGIN_COUNTRY", defaultOriginCountry)),
			Currency:             strings.ToUpper(env.str("QUOTE_CURRENCY", defaultCurrency)),
			DefaultMarkup:        env.float("QUOTE_DEFAULT_MARKUP", defaultMarkup),
			MinMargin:            env.float("QUOTE_MIN_MARGIN", defaultMinMargin),
			DefaultPackagingCost: env.int64("QUOTE_DEFAULT_PACKAGING_COST", defaultPackagingCost),
			Rounding:             strings.ToUpper(env.str("QUOTE_ROUNDING", defaultRounding)),
			CampaignMaxStack:     env.int("QUOTE_CAMPAIGN_MAX_STACK", defaultMaxStack),
			PriceRuleMaxStack:    env.int("QUOTE_PRICE_RULE_MAX_STACK", defaultMaxStack),
			Shipping: ShippingChargeConfig{
				DomesticFlat:               env.int64("QUOTE_SHIPPING_DOMESTIC_FLAT", defaultDomesticFlat),
				InternationalFlat:          env.int64("QUOTE_SHIPPING_INTERNATIONAL_FLAT", defaultInternationalFlat),
				DomesticFreeThreshold:      env.int64("QUOTE_FREE_SHIPPING_DOMESTIC", defaultDomesticThreshold),
				InternationalFreeThreshold: env.int64("QUOTE_FREE_SHIPPING_INTERNATIONAL", defaultInternationalFreeMin),
			},
			InsuranceEnabled: env.bool("QUOTE_INSURANCE_ENABLED", false),
			RateProvider:     strings.ToLower(env.str("QUOTE_RATE_PROVIDER", defaultRateProvider)),
			RateTimeout:      env.duration("QUOTE_RATE_TIMEOUT", defaultRateTimeout),
			Carrier: CarrierConfig{
				Endpoint:   env.str("QUOTE_CARRIER_ENDPOINT", ""),
				APIKey:     env.str("QUOTE_CARRIER_API_KEY", ""),
				Timeout:    env.duration("QUOTE_CARRIER_TIMEOUT", defaultCarrierTimeout),
				MaxRetries: env.int("QUOTE_CARRIER_MAX_RETRIES", defaultCarrierMaxRetries),
			},
			TablesFile: env.str("QUOTE_TABLES_FILE", ""),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	apiKey, err := resolveSecret(ctx, cfg.Quote.Carrier.APIKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Quote.Carrier.APIKey = apiKey

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.RateLimit >= 0, "Server.RateLimit")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")

	q := cfg.Quote
	region, err := language.ParseRegion(q.OriginCountry)
	check(err == nil && region.IsCountry(), "Quote.OriginCountry")
	_, err = currency.ParseISO(q.Currency)
	check(err == nil, "Quote.Currency")
	check(q.DefaultMarkup >= 0, "Quote.DefaultMarkup")
	check(q.MinMargin >= 0, "Quote.MinMargin")
	check(q.DefaultPackagingCost >= 0, "Quote.DefaultPackagingCost")
	_, known := roundingStrategies[q.Rounding]
	check(known, "Quote.Rounding")
	check(q.Shipping.DomesticFlat >= 0, "Quote.Shipping.DomesticFlat")
	check(q.Shipping.InternationalFlat >= 0, "Quote.Shipping.InternationalFlat")
	check(q.Shipping.DomesticFreeThreshold >= 0, "Quote.Shipping.DomesticFreeThreshold")
	check(q.Shipping.InternationalFreeThreshold >= 0, "Quote.Shipping.InternationalFreeThreshold")
	check(q.RateTimeout > 0, "Quote.RateTimeout")
	switch q.RateProvider {
	case RateProviderInHouse:
	case RateProviderCarrier:
		check(strings.TrimSpace(q.Carrier.Endpoint) != "", "Quote.Carrier.Endpoint")
		check(q.Carrier.Timeout > 0, "Quote.Carrier.Timeout")
		check(q.Carrier.MaxRetries >= 0, "Quote.Carrier.MaxRetries")
	default:
		check(false, "Quote.RateProvider")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}
