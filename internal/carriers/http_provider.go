package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/atelierhq/quoting/internal/domain"
	"github.com/atelierhq/quoting/internal/services"
)

const (
	defaultRequestTimeout = 1500 * time.Millisecond
	maxResponseBytes      = 64 << 10
)

// ErrCarrierUnavailable marks a carrier response that may succeed on retry.
var ErrCarrierUnavailable = errors.New("carrier: rate service unavailable")

// HTTPRateProviderConfig configures the carrier endpoint.
type HTTPRateProviderConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Client     *http.Client
	Logger     func(context.Context, string, map[string]any)
	// InitialInterval overrides the first retry delay.
	InitialInterval time.Duration
}

// HTTPRateProvider prices shipments through a JSON carrier API.
type HTTPRateProvider struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries int
	initial    time.Duration
	logger     func(context.Context, string, map[string]any)
}

var _ services.RateProvider = (*HTTPRateProvider)(nil)

// NewHTTPRateProvider validates the endpoint and applies defaults.
func NewHTTPRateProvider(cfg HTTPRateProviderConfig) (*HTTPRateProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("carrier: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &HTTPRateProvider{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		client:     client,
		maxRetries: maxRetries,
		initial:    initial,
		logger:     logger,
	}, nil
}

type rateRequestPayload struct {
	Zone          string           `json:"zone"`
	Service       string           `json:"service"`
	Currency      string           `json:"currency"`
	InsuredAmount int64            `json:"insuredAmount"`
	Packages      []packagePayload `json:"packages"`
}

type packagePayload struct {
	Reference string  `json:"reference,omitempty"`
	Kind      string  `json:"kind"`
	LengthCm  float64 `json:"lengthCm"`
	WidthCm   float64 `json:"widthCm"`
	HeightCm  float64 `json:"heightCm"`
	WeightKg  float64 `json:"weightKg"`
	Oversize  bool    `json:"oversize"`
}

type rateResponsePayload struct {
	Base              int64  `json:"base"`
	OversizeSurcharge *int64 `json:"oversizeSurcharge,omitempty"`
	SignatureFee      *int64 `json:"signatureFee,omitempty"`
	InsuranceFee      *int64 `json:"insuranceFee,omitempty"`
	Currency          string `json:"currency"`
}

// Rate posts the packed shipment to the carrier, retrying transient failures until ctx expires.
// A 404 or 422 answer maps to services.ErrRateUnavailable and is not retried.
func (p *HTTPRateProvider) Rate(ctx context.Context, req services.RateRequest) (domain.RateBreakdown, error) {
	body, err := json.Marshal(newRateRequestPayload(req))
	if err != nil {
		return domain.RateBreakdown{}, fmt.Errorf("carrier: encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initial
	policy.MaxInterval = 10 * p.initial
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.maxRetries)), ctx)

	var resp rateResponsePayload
	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		out, err := p.post(ctx, body)
		if err != nil {
			return err
		}
		resp = out
		return nil
	}, retry, func(err error, wait time.Duration) {
		p.logger(ctx, "carrier_rate_retry", map[string]any{
			"zone":    req.ZoneID,
			"service": string(req.Service),
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	})
	if err != nil {
		return domain.RateBreakdown{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(resp.Currency))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	}
	breakdown := domain.RateBreakdown{
		Base:              resp.Base,
		OversizeSurcharge: positive(resp.OversizeSurcharge),
		SignatureFee:      positive(resp.SignatureFee),
		InsuranceFee:      positive(resp.InsuranceFee),
		Currency:          currency,
	}
	breakdown.Total = services.SumRateComponents(breakdown)
	return breakdown, nil
}

func (p *HTTPRateProvider) post(ctx context.Context, body []byte) (rateResponsePayload, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return rateResponsePayload{}, backoff.Permanent(fmt.Errorf("carrier: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return rateResponsePayload{}, backoff.Permanent(ctx.Err())
		}
		return rateResponsePayload{}, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return rateResponsePayload{}, fmt.Errorf("%w: read body: %v", ErrCarrierUnavailable, err)
	}

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusUnprocessableEntity:
		return rateResponsePayload{}, backoff.Permanent(fmt.Errorf("%w: carrier status %d", services.ErrRateUnavailable, res.StatusCode))
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return rateResponsePayload{}, fmt.Errorf("%w: status %d", ErrCarrierUnavailable, res.StatusCode)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return rateResponsePayload{}, backoff.Permanent(fmt.Errorf("carrier: unexpected status %d", res.StatusCode))
	}

	var payload rateResponsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return rateResponsePayload{}, backoff.Permanent(fmt.Errorf("carrier: decode response: %w", err))
	}
	if payload.Base < 0 {
		return rateResponsePayload{}, backoff.Permanent(fmt.Errorf("carrier: negative base rate %d", payload.Base))
	}
	return payload, nil
}

func newRateRequestPayload(req services.RateRequest) rateRequestPayload {
	packages := make([]packagePayload, 0, len(req.Packages))
	for _, pkg := range req.Packages {
		packages = append(packages, packagePayload{
			Reference: pkg.ReferenceID,
			Kind:      string(pkg.Kind),
			LengthCm:  pkg.LengthCm,
			WidthCm:   pkg.WidthCm,
			HeightCm:  pkg.HeightCm,
			WeightKg:  pkg.BillableWeightKg(),
			Oversize:  pkg.Oversize,
		})
	}
	return rateRequestPayload{
		Zone:          req.ZoneID,
		Service:       string(req.Service),
		Currency:      req.Currency,
		InsuredAmount: req.InsuredAmount,
		Packages:      packages,
	}
}

// positive drops zero or negative fees so absent components stay nil.
func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}
