package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/event"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

// maxCodeAttempts bounds how many candidates may be minted per requested
// code before the batch is abandoned.
const maxCodeAttempts = 1000

// CouponService generates, validates, and redeems coupon codes.
type CouponService struct {
	campaigns repository.CampaignRepository
	coupons   repository.CouponRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(campaigns repository.CampaignRepository, coupons repository.CouponRepository, producer *event.Producer, logger *slog.Logger) *CouponService {
	return &CouponService{
		campaigns: campaigns,
		coupons:   coupons,
		producer:  producer,
		logger:    logger,
	}
}

// CouponValidation is the outcome of validating a single code. An invalid
// code is not an error; the reason is carried in Message.
type CouponValidation struct {
	Valid    bool             `json:"valid"`
	Campaign *domain.Campaign `json:"campaign,omitempty"`
	Message  string           `json:"message"`
}

// GenerateCoupons produces a batch of globally unique codes bound to the
// given campaign. The batch is atomic: either every requested code is
// persisted or none are.
func (s *CouponService) GenerateCoupons(ctx context.Context, campaignID string, cfg *domain.CouponGenerationConfig) ([]domain.CouponCode, error) {
	if campaignID == "" {
		return nil, apperrors.InvalidInput("campaign id is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if cfg.ExpirationDays != nil {
		t := now.AddDate(0, 0, *cfg.ExpirationDays)
		expiresAt = &t
	}

	charset := cfg.Charset()
	bodyLength := cfg.BodyLength()

	mint := func() (domain.CouponCode, error) {
		body, err := randomString(charset, bodyLength)
		if err != nil {
			return domain.CouponCode{}, fmt.Errorf("sample code body: %w", err)
		}
		return domain.CouponCode{
			ID:         uuid.New().String(),
			Code:       cfg.Prefix + body + cfg.Suffix,
			CampaignID: campaignID,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}, nil
	}

	coupons, err := s.coupons.CreateBatch(ctx, cfg.Quantity, maxCodeAttempts, mint)
	if err != nil {
		return nil, err
	}

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCouponsGenerated(ctx, campaignID, len(coupons)); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish coupons_generated event",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "coupons generated",
		slog.String("campaign_id", campaignID),
		slog.Int("quantity", len(coupons)),
	)

	return coupons, nil
}

// ValidateCoupon checks a single code's current validity without mutating
// any state. The first failing check short-circuits with its message.
func (s *CouponService) ValidateCoupon(ctx context.Context, code string, user *domain.UserContext) (*CouponValidation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &CouponValidation{Valid: false, Message: "coupon code not found"}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()

	campaign, msg := s.checkCoupon(ctx, coupon, user, now)
	if msg != "" {
		return &CouponValidation{Valid: false, Message: msg}, nil
	}

	return &CouponValidation{
		Valid:    true,
		Campaign: campaign,
		Message:  "coupon is valid",
	}, nil
}

// RedeemCoupon marks a valid coupon as consumed by the given user. Called by
// the order pipeline at order completion, never during validation.
func (s *CouponService) RedeemCoupon(ctx context.Context, code, userID string) (*domain.CouponCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if _, msg := s.checkCoupon(ctx, coupon, nil, now); msg != "" {
		return nil, apperrors.Conflict(msg)
	}

	if err := s.coupons.MarkUsed(ctx, coupon.Code, userID, now); err != nil {
		return nil, err
	}

	coupon.IsUsed = true
	coupon.UsedBy = userID
	coupon.UsedAt = &now

	// Do not fail the operation if event publishing fails.
	if err := s.producer.PublishCouponRedeemed(ctx, coupon, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish coupon_redeemed event",
			slog.String("code", coupon.Code),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "coupon redeemed",
		slog.String("code", coupon.Code),
		slog.String("campaign_id", coupon.CampaignID),
	)

	return coupon, nil
}

// ListCoupons returns a campaign's coupons with the total count.
func (s *CouponService) ListCoupons(ctx context.Context, campaignID string, page, perPage int) ([]domain.CouponCode, int, error) {
	if campaignID == "" {
		return nil, 0, apperrors.InvalidInput("campaign id is required")
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	return s.coupons.ListByCampaign(ctx, campaignID, page, perPage)
}

// checkCoupon runs the ordered validity checks against a coupon. An empty
// message means the coupon passed every check; the owning campaign is
// returned alongside.
func (s *CouponService) checkCoupon(ctx context.Context, coupon *domain.CouponCode, user *domain.UserContext, now time.Time) (*domain.Campaign, string) {
	if coupon.IsUsed {
		return nil, "coupon has already been used"
	}
	if coupon.IsExpired(now) {
		return nil, "coupon has expired"
	}

	campaign, err := s.campaigns.GetByID(ctx, coupon.CampaignID)
	if err != nil {
		return nil, "campaign for this coupon no longer exists"
	}
	if !campaign.IsRunning(now) {
		return nil, "campaign is not currently active"
	}

	if user != nil && !campaign.TargetAudience.Matches(user) {
		return nil, "coupon is not available for this user"
	}

	return campaign, ""
}

// randomString samples length characters uniformly from charset.
func randomString(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))

	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(charset[n.Int64()])
	}
	return sb.String(), nil
}
