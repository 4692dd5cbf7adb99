// Package memory provides in-memory implementations of the repository
// interfaces. They honor the same atomicity contracts as the PostgreSQL
// implementations (limit-guarded usage commits, unique code inserts) and
// back the engine in tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

// CampaignRepository is a mutex-guarded in-memory campaign store.
type CampaignRepository struct {
	mu        sync.RWMutex
	campaigns map[string]domain.Campaign
	usages    []repository.CampaignUsage
}

// NewCampaignRepository creates an empty in-memory campaign repository.
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{
		campaigns: make(map[string]domain.Campaign),
	}
}

// Create inserts a new campaign.
func (r *CampaignRepository) Create(_ context.Context, campaign *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.campaigns[campaign.ID]; ok {
		return apperrors.AlreadyExists("campaign", "id", campaign.ID)
	}
	r.campaigns[campaign.ID] = *campaign
	return nil
}

// GetByID retrieves a campaign by id.
func (r *CampaignRepository) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.NotFound("campaign", id)
	}
	return &c, nil
}

// List returns campaigns matching the filter, newest first.
func (r *CampaignRepository) List(_ context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Campaign
	for _, c := range r.campaigns {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.DiscountKind != nil && c.DiscountConfig.Kind != *filter.DiscountKind {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	if offset >= len(matched) {
		return []domain.Campaign{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]domain.Campaign, end-offset)
	copy(page, matched[offset:end])
	return page, total, nil
}

// ListActive returns campaigns that are active at now.
func (r *CampaignRepository) ListActive(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	campaigns := make([]domain.Campaign, 0)
	for _, c := range r.campaigns {
		if c.IsRunning(now) {
			campaigns = append(campaigns, c)
		}
	}

	sort.Slice(campaigns, func(i, j int) bool {
		a, b := campaigns[i], campaigns[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	return campaigns, nil
}

// Update replaces an existing campaign.
func (r *CampaignRepository) Update(_ context.Context, campaign *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.campaigns[campaign.ID]; !ok {
		return apperrors.NotFound("campaign", campaign.ID)
	}
	campaign.UpdatedAt = time.Now().UTC()
	r.campaigns[campaign.ID] = *campaign
	return nil
}

// Delete removes a campaign by id.
func (r *CampaignRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.campaigns[id]; !ok {
		return apperrors.NotFound("campaign", id)
	}
	delete(r.campaigns, id)
	return nil
}

// CommitUsage increments usage counters while the campaign is still under
// its usage limit. The check and increment happen under one lock, so the
// limit cannot be oversold by concurrent callers.
func (r *CampaignRepository) CommitUsage(_ context.Context, campaignID string, discount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[campaignID]
	if !ok {
		return apperrors.NotFound("campaign", campaignID)
	}

	limit := c.UsageConditions.UsageLimit
	if limit > 0 && c.Usage.TotalUsed >= limit {
		return apperrors.UsageLimitReached(campaignID)
	}

	c.Usage.TotalUsed++
	c.Usage.TotalSavings += discount
	c.UpdatedAt = time.Now().UTC()
	r.campaigns[campaignID] = c
	return nil
}

// RecordUsage appends a per-order usage entry and refreshes the campaign's
// distinct-user counter. Anonymous entries (empty user id) do not count.
func (r *CampaignRepository) RecordUsage(_ context.Context, usage *repository.CampaignUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usages = append(r.usages, *usage)

	if c, ok := r.campaigns[usage.CampaignID]; ok {
		users := make(map[string]struct{})
		for _, u := range r.usages {
			if u.CampaignID == usage.CampaignID && u.UserID != "" {
				users[u.UserID] = struct{}{}
			}
		}
		c.Usage.UniqueUsers = int64(len(users))
		r.campaigns[usage.CampaignID] = c
	}
	return nil
}

// CountUserUsage returns how many times the user has consumed the campaign.
func (r *CampaignRepository) CountUserUsage(_ context.Context, campaignID, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, u := range r.usages {
		if u.CampaignID == campaignID && u.UserID == userID {
			count++
		}
	}
	return count, nil
}

// CouponRepository is a mutex-guarded in-memory coupon store. Codes are
// matched exactly, the same behavior the unique constraint on
// coupon_codes.code provides in PostgreSQL.
type CouponRepository struct {
	mu      sync.RWMutex
	byCode  map[string]domain.CouponCode
	ordered []string
}

// NewCouponRepository creates an empty in-memory coupon repository.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		byCode: make(map[string]domain.CouponCode),
	}
}

// CreateBatch inserts quantity codes atomically under one lock. A candidate
// colliding with an existing code is minted again, up to maxAttemptsPerCode
// times; exhausting the bound leaves the store untouched.
func (r *CouponRepository) CreateBatch(_ context.Context, quantity, maxAttemptsPerCode int, mint repository.CodeMinter) ([]domain.CouponCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]domain.CouponCode, quantity)
	coupons := make([]domain.CouponCode, 0, quantity)

	for i := 0; i < quantity; i++ {
		inserted := false
		for attempt := 0; attempt < maxAttemptsPerCode; attempt++ {
			candidate, err := mint()
			if err != nil {
				return nil, err
			}

			key := candidate.Code
			if _, ok := r.byCode[key]; ok {
				continue
			}
			if _, ok := staged[key]; ok {
				continue
			}

			staged[key] = candidate
			coupons = append(coupons, candidate)
			inserted = true
			break
		}

		if !inserted {
			return nil, apperrors.GenerationFailed(
				"could not generate a unique code within the attempt bound")
		}
	}

	for key, c := range staged {
		r.byCode[key] = c
		r.ordered = append(r.ordered, key)
	}

	return coupons, nil
}

// GetByCode retrieves a coupon by its code.
func (r *CouponRepository) GetByCode(_ context.Context, code string) (*domain.CouponCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byCode[code]
	if !ok {
		return nil, apperrors.NotFound("coupon", code)
	}
	return &c, nil
}

// ListByCampaign returns a campaign's coupons in insertion order.
func (r *CouponRepository) ListByCampaign(_ context.Context, campaignID string, page, perPage int) ([]domain.CouponCode, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.CouponCode
	for _, key := range r.ordered {
		if c := r.byCode[key]; c.CampaignID == campaignID {
			matched = append(matched, c)
		}
	}

	total := len(matched)

	limit := perPage
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	if offset >= len(matched) {
		return []domain.CouponCode{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]domain.CouponCode, end-offset)
	copy(result, matched[offset:end])
	return result, total, nil
}

// MarkUsed flags a coupon as consumed. The order pipeline calls this at
// order completion; it is not part of validation.
func (r *CouponRepository) MarkUsed(_ context.Context, code, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCode[code]
	if !ok {
		return apperrors.NotFound("coupon", code)
	}
	if c.IsUsed {
		return apperrors.Conflict("coupon has already been used")
	}

	c.IsUsed = true
	c.UsedBy = userID
	c.UsedAt = &at
	r.byCode[code] = c
	return nil
}
