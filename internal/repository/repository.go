package repository

import (
	"context"
	"time"

	"github.com/utafrali/promotion-service/internal/domain"
)

// CampaignFilter defines filter criteria for listing campaigns.
type CampaignFilter struct {
	Status       *string
	DiscountKind *string
	Page         int
	PerPage      int
}

// CampaignUsage records a single application of a campaign to an order.
type CampaignUsage struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaign_id"`
	UserID          string    `json:"user_id"`
	OrderID         string    `json:"order_id"`
	DiscountApplied int64     `json:"discount_applied"`
	CreatedAt       time.Time `json:"created_at"`
}

// CampaignRepository defines campaign persistence operations.
type CampaignRepository interface {
	// Create inserts a new campaign into the store.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID retrieves a campaign by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter along with the total count.
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)

	// ListActive returns all campaigns that are active and whose date range
	// contains now. This is the checkout hot path.
	ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// Update modifies an existing campaign in the store.
	Update(ctx context.Context, campaign *domain.Campaign) error

	// Delete removes a campaign by id.
	Delete(ctx context.Context, id string) error

	// CommitUsage atomically increments a campaign's usage counters, but only
	// while total_used is still below the campaign's usage limit. Returns an
	// error wrapping apperrors.ErrUsageLimitHit when the limit is exhausted,
	// so concurrent checkouts cannot oversell a limited campaign, and
	// apperrors.ErrNotFound for an unknown campaign id.
	CommitUsage(ctx context.Context, campaignID string, discount int64) error

	// RecordUsage appends a per-order usage entry, feeding per-user limits
	// and the campaign's distinct-user counter.
	RecordUsage(ctx context.Context, usage *CampaignUsage) error

	// CountUserUsage returns how many times the given user has consumed the
	// given campaign.
	CountUserUsage(ctx context.Context, campaignID, userID string) (int64, error)
}

// CodeMinter produces one candidate coupon record. It is called once per
// needed code and again after each collision.
type CodeMinter func() (domain.CouponCode, error)

// CouponRepository defines coupon persistence operations.
type CouponRepository interface {
	// CreateBatch inserts quantity codes in a single transaction. Candidates
	// come from mint; a candidate whose code already exists anywhere in the
	// namespace is discarded and minted again, up to maxAttemptsPerCode
	// times. Exceeding the bound fails the whole batch and nothing is
	// committed.
	CreateBatch(ctx context.Context, quantity, maxAttemptsPerCode int, mint CodeMinter) ([]domain.CouponCode, error)

	// GetByCode retrieves a coupon by its code.
	GetByCode(ctx context.Context, code string) (*domain.CouponCode, error)

	// ListByCampaign returns a campaign's coupons along with the total count.
	ListByCampaign(ctx context.Context, campaignID string, page, perPage int) ([]domain.CouponCode, int, error)

	// MarkUsed flags a coupon as consumed by the given user. Fails with a
	// conflict if the coupon was already used, atomically, so two orders
	// cannot redeem the same code.
	MarkUsed(ctx context.Context, code, userID string, at time.Time) error
}
