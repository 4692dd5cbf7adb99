package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository"
)

const activeCampaignsKey = "promotion:active_campaigns"

// CampaignRepository decorates another campaign repository with a Redis cache
// for the ListActive hot path. Every discount calculation loads the full
// active campaign set, so caching it takes the database off the checkout
// critical path. Writes invalidate the cache; a stale entry therefore lives
// at most one TTL, which only matters for scheduled campaigns crossing into
// their start date.
//
// Cache failures are logged and fall through to the inner repository, so
// Redis being down degrades latency, not correctness.
type CampaignRepository struct {
	inner  repository.CampaignRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCampaignRepository wraps inner with a Redis-backed ListActive cache.
func NewCampaignRepository(inner repository.CampaignRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CampaignRepository {
	return &CampaignRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// ListActive returns the cached active campaign set, falling back to the
// inner repository on a miss. Cached entries are re-checked against now so a
// campaign whose end date passed since the fill is not returned.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	data, err := r.client.Get(ctx, activeCampaignsKey).Bytes()
	if err == nil {
		var cached []domain.Campaign
		if err := json.Unmarshal(data, &cached); err == nil {
			result := make([]domain.Campaign, 0, len(cached))
			for _, c := range cached {
				if c.IsRunning(now) {
					result = append(result, c)
				}
			}
			return result, nil
		}
		r.logger.WarnContext(ctx, "corrupt active campaign cache entry, refilling",
			slog.String("key", activeCampaignsKey),
		)
	} else if err != redis.Nil {
		r.logger.WarnContext(ctx, "redis get active campaigns failed",
			slog.String("error", err.Error()),
		)
	}

	campaigns, err := r.inner.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(campaigns); err == nil {
		if err := r.client.Set(ctx, activeCampaignsKey, data, r.ttl).Err(); err != nil {
			r.logger.WarnContext(ctx, "redis set active campaigns failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return campaigns, nil
}

func (r *CampaignRepository) invalidate(ctx context.Context) {
	if err := r.client.Del(ctx, activeCampaignsKey).Err(); err != nil {
		r.logger.WarnContext(ctx, "redis invalidate active campaigns failed",
			slog.String("error", err.Error()),
		)
	}
}

// Create inserts a campaign and invalidates the active set.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	if err := r.inner.Create(ctx, campaign); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// GetByID delegates to the inner repository.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.inner.GetByID(ctx, id)
}

// List delegates to the inner repository.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	return r.inner.List(ctx, filter)
}

// Update modifies a campaign and invalidates the active set.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	if err := r.inner.Update(ctx, campaign); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// Delete removes a campaign and invalidates the active set.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// CommitUsage increments usage counters and invalidates the active set, since
// the counters feed usage limit eligibility.
func (r *CampaignRepository) CommitUsage(ctx context.Context, campaignID string, discount int64) error {
	if err := r.inner.CommitUsage(ctx, campaignID, discount); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// RecordUsage appends a usage entry and invalidates the active set, since it
// refreshes the campaign's distinct-user counter.
func (r *CampaignRepository) RecordUsage(ctx context.Context, usage *repository.CampaignUsage) error {
	if err := r.inner.RecordUsage(ctx, usage); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// CountUserUsage delegates to the inner repository.
func (r *CampaignRepository) CountUserUsage(ctx context.Context, campaignID, userID string) (int64, error) {
	return r.inner.CountUserUsage(ctx, campaignID, userID)
}
