package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "quotes-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.RateLimit != 120 {
		t.Errorf("expected default rate limit 120, got %d", cfg.Server.RateLimit)
	}
	if cfg.PubSub.ProjectID != "quotes-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Secrets.ProjectID != "quotes-dev" {
		t.Errorf("expected secrets project to default to firestore project, got %s", cfg.Secrets.ProjectID)
	}
	if cfg.PubSub.PackingPlanTopic != "" {
		t.Errorf("expected packing plan publishing disabled, got topic %q", cfg.PubSub.PackingPlanTopic)
	}

	q := cfg.Quote
	if q.OriginCountry != "NL" || q.Currency != "EUR" {
		t.Errorf("unexpected origin/currency: %s/%s", q.OriginCountry, q.Currency)
	}
	if q.DefaultMarkup != defaultMarkup || q.MinMargin != defaultMinMargin {
		t.Errorf("unexpected markup defaults: %v/%v", q.DefaultMarkup, q.MinMargin)
	}
	if q.Rounding != "NONE" {
		t.Errorf("expected rounding NONE, got %s", q.Rounding)
	}
	if q.CampaignMaxStack != 3 || q.PriceRuleMaxStack != 3 {
		t.Errorf("unexpected max stack: %d/%d", q.CampaignMaxStack, q.PriceRuleMaxStack)
	}
	if q.Shipping.InternationalFlat != 2500 || q.Shipping.InternationalFreeThreshold != 25000 {
		t.Errorf("unexpected international shipping defaults: %+v", q.Shipping)
	}
	if q.RateProvider != RateProviderInHouse {
		t.Errorf("expected in-house rate provider, got %s", q.RateProvider)
	}
	if q.RateTimeout != 2*time.Second {
		t.Errorf("unexpected rate timeout: %s", q.RateTimeout)
	}
	if q.InsuranceEnabled {
		t.Errorf("expected insurance disabled by default")
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIRESTORE_PROJECT_ID":          "quotes-prod",
		"API_PUBSUB_PROJECT_ID":             "events-prod",
		"API_PUBSUB_PACKING_PLAN_TOPIC":     "packing-plans",
		"QUOTE_ORIGIN_COUNTRY":              "de",
		"QUOTE_CURRENCY":                    "eur",
		"QUOTE_DEFAULT_MARKUP":              "0.65",
		"QUOTE_ROUNDING":                    "end_99",
		"QUOTE_CAMPAIGN_MAX_STACK":          "5",
		"QUOTE_SHIPPING_DOMESTIC_FLAT":      "590",
		"QUOTE_FREE_SHIPPING_INTERNATIONAL": "30000",
		"QUOTE_INSURANCE_ENABLED":           "true",
		"QUOTE_RATE_PROVIDER":               "carrier",
		"QUOTE_RATE_TIMEOUT":                "3",
		"QUOTE_CARRIER_ENDPOINT":            "https://carrier.example.com/rates",
		"QUOTE_CARRIER_API_KEY":             "sm://carrier/api-key",
		"QUOTE_CARRIER_MAX_RETRIES":         "4",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://carrier/api-key" {
			return "carrier-key", nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.PubSub.ProjectID != "events-prod" || cfg.PubSub.PackingPlanTopic != "packing-plans" {
		t.Errorf("unexpected pubsub config: %+v", cfg.PubSub)
	}
	q := cfg.Quote
	if q.OriginCountry != "DE" || q.Currency != "EUR" {
		t.Errorf("expected upper-cased origin/currency, got %s/%s", q.OriginCountry, q.Currency)
	}
	if q.DefaultMarkup != 0.65 {
		t.Errorf("unexpected markup: %v", q.DefaultMarkup)
	}
	if q.Rounding != "END_99" {
		t.Errorf("expected END_99, got %s", q.Rounding)
	}
	if q.CampaignMaxStack != 5 || q.PriceRuleMaxStack != 3 {
		t.Errorf("unexpected stack limits: %d/%d", q.CampaignMaxStack, q.PriceRuleMaxStack)
	}
	if q.Shipping.DomesticFlat != 590 || q.Shipping.InternationalFreeThreshold != 30000 {
		t.Errorf("unexpected shipping charges: %+v", q.Shipping)
	}
	if !q.InsuranceEnabled {
		t.Errorf("expected insurance enabled")
	}
	if q.RateTimeout != 3*time.Second {
		t.Errorf("expected bare seconds to parse, got %s", q.RateTimeout)
	}
	if q.Carrier.APIKey != "carrier-key" {
		t.Errorf("expected resolved carrier key, got %q", q.Carrier.APIKey)
	}
	if q.Carrier.MaxRetries != 4 {
		t.Errorf("unexpected carrier retries: %d", q.Carrier.MaxRetries)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_FIRESTORE_PROJECT_ID=dotenv-project\nexport QUOTE_CURRENCY=\"usd\"\nQUOTE_ORIGIN_COUNTRY='us'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"QUOTE_ORIGIN_COUNTRY": "GB",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "dotenv-project" {
		t.Errorf("expected project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Quote.Currency != "USD" {
		t.Errorf("expected quoted dotenv value to be unwrapped, got %s", cfg.Quote.Currency)
	}
	if cfg.Quote.OriginCountry != "GB" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Quote.OriginCountry)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"QUOTE_ORIGIN_COUNTRY": "ZZZ",
		"QUOTE_CURRENCY":       "EURO",
		"QUOTE_ROUNDING":       "CEIL",
		"QUOTE_RATE_PROVIDER":  "carrier",
	}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{
		"Firestore.ProjectID":    false,
		"Quote.OriginCountry":    false,
		"Quote.Currency":         false,
		"Quote.Rounding":         false,
		"Quote.Carrier.Endpoint": false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, vErr.Fields())
		}
	}
}

func TestLoadRejectsUnknownRateProvider(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"API_FIRESTORE_PROJECT_ID": "quotes-dev",
		"QUOTE_RATE_PROVIDER":      "pigeon",
	}), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := vErr.Fields()
	if len(fields) != 1 || fields[0] != "Quote.RateProvider" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "quotes-dev",
		"QUOTE_CARRIER_API_KEY":    "secret://carrier/api-key",
	}
	resolverErr := errors.New("permission denied")
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", resolverErr
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://carrier/api-key" {
		t.Errorf("unexpected ref: %s", secretErr.Ref)
	}
	if !errors.Is(err, resolverErr) {
		t.Errorf("expected wrapped resolver error")
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "quotes-dev",
		"QUOTE_CARRIER_API_KEY":    "sm://carrier/api-key",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured error, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("A=dotenv\nB=dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"B": "map"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["A"] != "dotenv" || values["B"] != "map" {
		t.Fatalf("unexpected merged values: %v", values)
	}
}

func TestEnvironmentValuesRejectsMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if _, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv()); err == nil {
		t.Fatal("expected parse error")
	}
}
