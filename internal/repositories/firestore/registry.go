package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/atelierhq/quoting/internal/platform/firestore"
	"github.com/atelierhq/quoting/internal/repositories"
)

// Registry exposes the Firestore-backed repositories.
type Registry struct {
	provider   *pfirestore.Provider
	campaigns  *CampaignRepository
	priceRules *PriceRuleRepository
	profiles   *PricingProfileRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository over one provider. Extra checks join the Firestore probe
// in readiness reports.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	campaigns, err := NewCampaignRepository(provider)
	if err != nil {
		return nil, err
	}
	priceRules, err := NewPriceRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	profiles, err := NewPricingProfileRepository(provider)
	if err != nil {
		return nil, err
	}
	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return &Registry{
		provider:   provider,
		campaigns:  campaigns,
		priceRules: priceRules,
		profiles:   profiles,
		health:     health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Campaigns() repositories.CampaignRepository { return r.campaigns }

func (r *Registry) PriceRules() repositories.PriceRuleRepository { return r.priceRules }

func (r *Registry) PricingProfiles() repositories.PricingProfileRepository { return r.profiles }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
