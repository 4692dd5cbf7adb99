package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/repository/memory"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

func newTestCouponService() (*CouponService, *memory.CampaignRepository, *memory.CouponRepository) {
	campaigns := memory.NewCampaignRepository()
	coupons := memory.NewCouponRepository()
	svc := NewCouponService(campaigns, coupons, newTestProducer(), newTestLogger())
	return svc, campaigns, coupons
}

func defaultGenerationConfig(quantity int) *domain.CouponGenerationConfig {
	return &domain.CouponGenerationConfig{
		Prefix:              "SUMMER-",
		Length:              12,
		IncludeNumbers:      true,
		IncludeLetters:      true,
		ExcludeSimilarChars: true,
		Quantity:            quantity,
	}
}

// --- Tests ---

func TestGenerateCoupons_Success(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	coupons, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(5))

	require.NoError(t, err)
	require.Len(t, coupons, 5)

	seen := make(map[string]struct{})
	for _, c := range coupons {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "camp-1", c.CampaignID)
		assert.Len(t, c.Code, 12)
		assert.True(t, strings.HasPrefix(c.Code, "SUMMER-"))
		assert.Nil(t, c.ExpiresAt)
		assert.False(t, c.IsUsed)

		body := strings.TrimPrefix(c.Code, "SUMMER-")
		assert.NotContains(t, body, "0")
		assert.NotContains(t, body, "O")
		assert.NotContains(t, body, "1")
		assert.NotContains(t, body, "I")
		assert.NotContains(t, body, "l")

		_, dup := seen[c.Code]
		assert.False(t, dup, "duplicate code %s", c.Code)
		seen[c.Code] = struct{}{}
	}
}

func TestGenerateCoupons_SuffixAndExpiration(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	cfg := &domain.CouponGenerationConfig{
		Suffix:         "-VIP",
		Length:         10,
		IncludeNumbers: true,
		Quantity:       3,
		ExpirationDays: intPtr(30),
	}

	coupons, err := svc.GenerateCoupons(ctx, "camp-1", cfg)

	require.NoError(t, err)
	require.Len(t, coupons, 3)
	for _, c := range coupons {
		assert.True(t, strings.HasSuffix(c.Code, "-VIP"))
		require.NotNil(t, c.ExpiresAt)
		assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), *c.ExpiresAt, time.Minute)
	}
}

func TestGenerateCoupons_CampaignNotFound(t *testing.T) {
	svc, _, _ := newTestCouponService()

	coupons, err := svc.GenerateCoupons(context.Background(), "missing", defaultGenerationConfig(5))

	assert.Nil(t, coupons)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGenerateCoupons_InvalidConfig(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	cases := []struct {
		name string
		cfg  *domain.CouponGenerationConfig
	}{
		{"zero quantity", &domain.CouponGenerationConfig{Length: 8, IncludeNumbers: true}},
		{"no character classes", &domain.CouponGenerationConfig{Length: 8, Quantity: 1}},
		{"prefix consumes length", &domain.CouponGenerationConfig{Prefix: "TOOLONGPREFIX", Length: 8, IncludeNumbers: true, Quantity: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupons, err := svc.GenerateCoupons(ctx, "camp-1", tc.cfg)
			assert.Nil(t, coupons)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestValidateCoupon_RoundTrip(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	coupons, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(10))
	require.NoError(t, err)
	require.Len(t, coupons, 10)

	for _, c := range coupons {
		result, err := svc.ValidateCoupon(ctx, c.Code, nil)
		require.NoError(t, err)
		assert.True(t, result.Valid, "coupon %s should validate", c.Code)
		require.NotNil(t, result.Campaign)
		assert.Equal(t, "camp-1", result.Campaign.ID)
	}
}

func TestValidateCoupon_NotFound(t *testing.T) {
	svc, _, _ := newTestCouponService()

	result, err := svc.ValidateCoupon(context.Background(), "NOPE", nil)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "coupon code not found", result.Message)
}

func TestValidateCoupon_AlreadyUsed(t *testing.T) {
	svc, campaigns, coupons := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)
	require.NoError(t, coupons.MarkUsed(ctx, batch[0].Code, "user-1", time.Now().UTC()))

	result, err := svc.ValidateCoupon(ctx, batch[0].Code, nil)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "coupon has already been used", result.Message)
}

func TestValidateCoupon_Expired(t *testing.T) {
	svc, campaigns, coupons := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	expired := time.Now().UTC().Add(-time.Hour)
	_, err := coupons.CreateBatch(ctx, 1, 1, func() (domain.CouponCode, error) {
		return domain.CouponCode{
			ID:         "coupon-1",
			Code:       "EXPIRED1",
			CampaignID: "camp-1",
			ExpiresAt:  &expired,
			CreatedAt:  time.Now().UTC(),
		}, nil
	})
	require.NoError(t, err)

	result, err := svc.ValidateCoupon(ctx, "EXPIRED1", nil)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "coupon has expired", result.Message)
}

func TestValidateCoupon_CampaignNotActive(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	paused := activeCampaign("camp-1", 5, true, percentageConfig(20, nil))
	require.NoError(t, campaigns.Create(ctx, paused))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	paused.Status = domain.CampaignStatusPaused
	require.NoError(t, campaigns.Update(ctx, paused))

	result, err := svc.ValidateCoupon(ctx, batch[0].Code, nil)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "campaign is not currently active", result.Message)
}

func TestValidateCoupon_AudienceMismatch(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	vipOnly := activeCampaign("camp-1", 5, true, percentageConfig(20, nil))
	vipOnly.TargetAudience = domain.TargetAudience{Kind: domain.AudienceVipMembers}
	require.NoError(t, campaigns.Create(ctx, vipOnly))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	result, err := svc.ValidateCoupon(ctx, batch[0].Code, &domain.UserContext{ID: "user-1", Type: domain.UserTypeNew})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "coupon is not available for this user", result.Message)

	vip, err := svc.ValidateCoupon(ctx, batch[0].Code, &domain.UserContext{ID: "user-2", Type: domain.UserTypeVip})
	require.NoError(t, err)
	assert.True(t, vip.Valid)
}

func TestValidateCoupon_TrimsSurroundingWhitespace(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	result, err := svc.ValidateCoupon(ctx, "  "+batch[0].Code+"\t", nil)

	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateCoupon_IsPure(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	first, err := svc.ValidateCoupon(ctx, batch[0].Code, nil)
	require.NoError(t, err)
	second, err := svc.ValidateCoupon(ctx, batch[0].Code, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, second.Valid)
}

func TestRedeemCoupon_Success(t *testing.T) {
	svc, campaigns, coupons := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	redeemed, err := svc.RedeemCoupon(ctx, batch[0].Code, "user-1")

	require.NoError(t, err)
	assert.True(t, redeemed.IsUsed)
	assert.Equal(t, "user-1", redeemed.UsedBy)
	require.NotNil(t, redeemed.UsedAt)

	stored, err := coupons.GetByCode(ctx, batch[0].Code)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
}

func TestRedeemCoupon_SecondRedemptionConflicts(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	_, err = svc.RedeemCoupon(ctx, batch[0].Code, "user-1")
	require.NoError(t, err)

	redeemed, err := svc.RedeemCoupon(ctx, batch[0].Code, "user-2")

	assert.Nil(t, redeemed)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRedeemCoupon_TrimsSurroundingWhitespace(t *testing.T) {
	svc, campaigns, coupons := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	batch, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(1))
	require.NoError(t, err)

	redeemed, err := svc.RedeemCoupon(ctx, " "+batch[0].Code+" ", "user-1")

	require.NoError(t, err)
	assert.True(t, redeemed.IsUsed)

	stored, err := coupons.GetByCode(ctx, batch[0].Code)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
}

func TestRedeemCoupon_NotFound(t *testing.T) {
	svc, _, _ := newTestCouponService()

	redeemed, err := svc.RedeemCoupon(context.Background(), "MISSING", "user-1")

	assert.Nil(t, redeemed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListCoupons_Pagination(t *testing.T) {
	svc, campaigns, _ := newTestCouponService()
	ctx := context.Background()

	require.NoError(t, campaigns.Create(ctx, activeCampaign("camp-1", 5, true, percentageConfig(20, nil))))

	_, err := svc.GenerateCoupons(ctx, "camp-1", defaultGenerationConfig(7))
	require.NoError(t, err)

	page1, total, err := svc.ListCoupons(ctx, "camp-1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, page1, 5)

	page2, _, err := svc.ListCoupons(ctx, "camp-1", 2, 5)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
}
