package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

func testCampaign(id string) *domain.Campaign {
	now := time.Now()
	return &domain.Campaign{
		ID:     id,
		Name:   "Campaign " + id,
		Status: domain.CampaignStatusActive,
		DiscountConfig: domain.DiscountConfig{
			Kind:       domain.DiscountKindPercentage,
			Percentage: &domain.PercentageDiscount{Percentage: 10},
		},
		TargetAudience: domain.TargetAudience{Kind: domain.AudienceAllUsers},
		StartDate:      now.Add(-time.Hour),
		EndDate:        now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCampaignRepository_CreateAndGet(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()

	c := testCampaign("camp-1")
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)

	assert.ErrorIs(t, repo.Create(ctx, c), apperrors.ErrAlreadyExists)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCampaignRepository_ListActive_SortsByPriority(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()
	now := time.Now()

	low := testCampaign("camp-low")
	low.Priority = 1
	high := testCampaign("camp-high")
	high.Priority = 10
	paused := testCampaign("camp-paused")
	paused.Status = domain.CampaignStatusPaused

	for _, c := range []*domain.Campaign{low, high, paused} {
		require.NoError(t, repo.Create(ctx, c))
	}

	active, err := repo.ListActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "camp-high", active[0].ID)
	assert.Equal(t, "camp-low", active[1].ID)
}

func TestCampaignRepository_CommitUsage_EnforcesLimit(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()

	c := testCampaign("camp-limited")
	c.UsageConditions.UsageLimit = 2
	require.NoError(t, repo.Create(ctx, c))

	require.NoError(t, repo.CommitUsage(ctx, "camp-limited", 100))
	require.NoError(t, repo.CommitUsage(ctx, "camp-limited", 200))

	err := repo.CommitUsage(ctx, "camp-limited", 300)
	assert.ErrorIs(t, err, apperrors.ErrUsageLimitHit)

	got, err := repo.GetByID(ctx, "camp-limited")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Usage.TotalUsed)
	assert.Equal(t, int64(300), got.Usage.TotalSavings)
}

func TestCampaignRepository_CommitUsage_ConcurrentNeverOversells(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()

	c := testCampaign("camp-race")
	c.UsageConditions.UsageLimit = 50
	require.NoError(t, repo.Create(ctx, c))

	var wg sync.WaitGroup
	successes := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.CommitUsage(ctx, "camp-race", 10); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Equal(t, 50, len(successes))

	got, err := repo.GetByID(ctx, "camp-race")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Usage.TotalUsed)
}

func TestCampaignRepository_RecordUsage_TracksUniqueUsers(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCampaign("camp-1")))

	entries := []struct{ id, userID string }{
		{"usage-1", "user-1"},
		{"usage-2", "user-1"}, // repeat user
		{"usage-3", "user-2"},
		{"usage-4", ""}, // anonymous, not counted
	}
	for _, e := range entries {
		require.NoError(t, repo.RecordUsage(ctx, &repository.CampaignUsage{
			ID:         e.id,
			CampaignID: "camp-1",
			UserID:     e.userID,
		}))
	}

	got, err := repo.GetByID(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Usage.UniqueUsers)
}

func TestCampaignRepository_CountUserUsage(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordUsage(ctx, &repository.CampaignUsage{
			ID:         fmt.Sprintf("usage-%d", i),
			CampaignID: "camp-1",
			UserID:     "user-1",
		}))
	}
	require.NoError(t, repo.RecordUsage(ctx, &repository.CampaignUsage{
		ID:         "usage-other",
		CampaignID: "camp-1",
		UserID:     "user-2",
	}))

	count, err := repo.CountUserUsage(ctx, "camp-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

// ---------------------------------------------------------------------------
// CouponRepository
// ---------------------------------------------------------------------------

func mintSequence(codes ...string) repository.CodeMinter {
	i := 0
	return func() (domain.CouponCode, error) {
		code := codes[i%len(codes)]
		i++
		return domain.CouponCode{
			ID:         "id-" + code,
			Code:       code,
			CampaignID: "camp-1",
			CreatedAt:  time.Now(),
		}, nil
	}
}

func TestCouponRepository_CreateBatch_Unique(t *testing.T) {
	repo := NewCouponRepository()
	ctx := context.Background()

	coupons, err := repo.CreateBatch(ctx, 2, 10, mintSequence("AAAA", "BBBB"))
	require.NoError(t, err)
	require.Len(t, coupons, 2)

	got, err := repo.GetByCode(ctx, "AAAA")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", got.CampaignID)
}

func TestCouponRepository_CreateBatch_SkipsCollisions(t *testing.T) {
	repo := NewCouponRepository()
	ctx := context.Background()

	_, err := repo.CreateBatch(ctx, 1, 10, mintSequence("AAAA"))
	require.NoError(t, err)

	// Minter first re-emits the taken code, then a fresh one.
	coupons, err := repo.CreateBatch(ctx, 1, 10, mintSequence("AAAA", "BBBB"))
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "BBBB", coupons[0].Code)
}

func TestCouponRepository_CreateBatch_FailsAtomically(t *testing.T) {
	repo := NewCouponRepository()
	ctx := context.Background()

	_, err := repo.CreateBatch(ctx, 1, 10, mintSequence("TAKEN"))
	require.NoError(t, err)

	// Second batch wants two codes but the minter only ever produces the
	// taken one, so the batch must fail without committing anything new.
	_, err = repo.CreateBatch(ctx, 2, 3, mintSequence("TAKEN"))
	assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)

	coupons, total, err := repo.ListByCampaign(ctx, "camp-1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, coupons, 1)
}

func TestCouponRepository_GetByCode_ExactMatch(t *testing.T) {
	repo := NewCouponRepository()
	ctx := context.Background()

	_, err := repo.CreateBatch(ctx, 1, 10, mintSequence("Summer-Abc"))
	require.NoError(t, err)

	got, err := repo.GetByCode(ctx, "Summer-Abc")
	require.NoError(t, err)
	assert.Equal(t, "Summer-Abc", got.Code)

	// The generation alphabet is mixed-case, so lookups never case-fold.
	_, err = repo.GetByCode(ctx, "SUMMER-ABC")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCouponRepository_MarkUsed(t *testing.T) {
	repo := NewCouponRepository()
	ctx := context.Background()

	_, err := repo.CreateBatch(ctx, 1, 10, mintSequence("REDEEM"))
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, repo.MarkUsed(ctx, "REDEEM", "user-1", at))

	got, err := repo.GetByCode(ctx, "REDEEM")
	require.NoError(t, err)
	assert.True(t, got.IsUsed)
	assert.Equal(t, "user-1", got.UsedBy)

	assert.ErrorIs(t, repo.MarkUsed(ctx, "REDEEM", "user-2", at), apperrors.ErrConflict)
	assert.ErrorIs(t, repo.MarkUsed(ctx, "MISSING", "user-1", at), apperrors.ErrNotFound)
}
