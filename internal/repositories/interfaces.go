package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/atelierhq/quoting/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Campaigns() CampaignRepository
	PriceRules() PriceRuleRepository
	PricingProfiles() PricingProfileRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err is a RepositoryError describing a missing document.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// CampaignRepository reads marketing campaigns.
type CampaignRepository interface {
	// ListActive returns campaigns flagged active whose window contains now. Callers still
	// re-check windows because the query is evaluated before the quote clock is fixed.
	ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// PriceRuleRepository reads standing price rules.
type PriceRuleRepository interface {
	ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error)
}

// PricingProfileRepository reads per-artist pricing overrides.
type PricingProfileRepository interface {
	// FindByArtistID returns a RepositoryError with IsNotFound when the artist has no profile.
	FindByArtistID(ctx context.Context, artistID string) (domain.ArtistPricingProfile, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
