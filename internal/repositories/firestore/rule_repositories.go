package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelierhq/quoting/internal/domain"
	pfirestore "github.com/atelierhq/quoting/internal/platform/firestore"
	"github.com/atelierhq/quoting/internal/repositories"
)

const (
	campaignsCollection       = "campaigns"
	priceRulesCollection      = "priceRules"
	pricingProfilesCollection = "artistPricingProfiles"
)

func activeOnly(query firestore.Query) firestore.Query {
	return query.Where("active", "==", true)
}

// CampaignRepository reads active campaigns.
type CampaignRepository struct {
	reader *pfirestore.Reader[adjustmentDocument]
}

var _ repositories.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository(provider *pfirestore.Provider) (*CampaignRepository, error) {
	if provider == nil {
		return nil, errors.New("campaign repository requires firestore provider")
	}
	return &CampaignRepository{reader: pfirestore.NewReader[adjustmentDocument](provider, campaignsCollection, nil)}, nil
}

// ListActive skips documents with scopes campaigns do not support.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	docs, err := r.reader.Query(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	campaigns := make([]domain.Campaign, 0, len(docs))
	for _, doc := range docs {
		campaign, ok := campaignFromDocument(doc.ID, doc.Data)
		if !ok || !campaign.ActiveAt(now) {
			continue
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

// PriceRuleRepository reads active price rules.
type PriceRuleRepository struct {
	reader *pfirestore.Reader[adjustmentDocument]
}

var _ repositories.PriceRuleRepository = (*PriceRuleRepository)(nil)

func NewPriceRuleRepository(provider *pfirestore.Provider) (*PriceRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("price rule repository requires firestore provider")
	}
	return &PriceRuleRepository{reader: pfirestore.NewReader[adjustmentDocument](provider, priceRulesCollection, nil)}, nil
}

func (r *PriceRuleRepository) ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error) {
	docs, err := r.reader.Query(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	rules := make([]domain.PriceRule, 0, len(docs))
	for _, doc := range docs {
		rule, ok := priceRuleFromDocument(doc.ID, doc.Data)
		if !ok || !rule.ActiveAt(now) {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// PricingProfileRepository reads artist pricing profiles keyed by artist id.
type PricingProfileRepository struct {
	reader *pfirestore.Reader[pricingProfileDocument]
}

var _ repositories.PricingProfileRepository = (*PricingProfileRepository)(nil)

func NewPricingProfileRepository(provider *pfirestore.Provider) (*PricingProfileRepository, error) {
	if provider == nil {
		return nil, errors.New("pricing profile repository requires firestore provider")
	}
	return &PricingProfileRepository{reader: pfirestore.NewReader[pricingProfileDocument](provider, pricingProfilesCollection, nil)}, nil
}

func (r *PricingProfileRepository) FindByArtistID(ctx context.Context, artistID string) (domain.ArtistPricingProfile, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return domain.ArtistPricingProfile{}, pfirestore.NotFound("artistPricingProfiles.get", errors.New("artist id is required"))
	}
	doc, err := r.reader.Get(ctx, artistID)
	if err != nil {
		return domain.ArtistPricingProfile{}, err
	}
	return pricingProfileFromDocument(doc.ID, doc.Data), nil
}
