package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/event"
	"github.com/utafrali/promotion-service/internal/repository"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

// PromotionService evaluates active campaigns against orders. Calculation is
// a pure read; application additionally commits usage counters and publishes
// a discount_applied event.
type PromotionService struct {
	campaigns repository.CampaignRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewPromotionService creates a new promotion service.
func NewPromotionService(campaigns repository.CampaignRepository, producer *event.Producer, logger *slog.Logger) *PromotionService {
	return &PromotionService{
		campaigns: campaigns,
		producer:  producer,
		logger:    logger,
	}
}

// CalculateDiscount evaluates all eligible campaigns against the order and
// returns the compounded discount breakdown. No state is mutated; usage
// counters move only through ApplyDiscount.
func (s *PromotionService) CalculateDiscount(ctx context.Context, order *domain.Order, user *domain.UserContext) (*domain.DiscountCalculationResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	eligible, err := s.eligibleCampaigns(ctx, order, user)
	if err != nil {
		return nil, err
	}

	return resolveDiscounts(eligible, order), nil
}

// ApplyDiscount evaluates the order and commits each applied campaign to the
// usage ledger. A campaign whose usage limit is exhausted by a concurrent
// order surfaces as a usage limit error; the caller is expected to reprice.
func (s *PromotionService) ApplyDiscount(ctx context.Context, orderID string, order *domain.Order, user *domain.UserContext) (*domain.DiscountCalculationResult, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	result, err := s.CalculateDiscount(ctx, order, user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userID := ""
	if user != nil {
		userID = user.ID
	}

	for _, applied := range result.AppliedPromotions {
		if err := s.campaigns.CommitUsage(ctx, applied.CampaignID, applied.DiscountAmount); err != nil {
			return nil, fmt.Errorf("commit usage for campaign %s: %w", applied.CampaignID, err)
		}

		usage := &repository.CampaignUsage{
			ID:              uuid.New().String(),
			CampaignID:      applied.CampaignID,
			UserID:          userID,
			OrderID:         orderID,
			DiscountApplied: applied.DiscountAmount,
			CreatedAt:       now,
		}
		if err := s.campaigns.RecordUsage(ctx, usage); err != nil {
			s.logger.ErrorContext(ctx, "failed to record campaign usage",
				slog.String("campaign_id", applied.CampaignID),
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(result.AppliedPromotions) > 0 || result.FreeShipping {
		// Do not fail the operation if event publishing fails.
		if err := s.producer.PublishDiscountApplied(ctx, orderID, userID, result); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish discount_applied event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "discount applied",
		slog.String("order_id", orderID),
		slog.Int64("discount_amount", result.DiscountAmount),
		slog.Int("campaigns_applied", len(result.AppliedPromotions)),
	)

	return result, nil
}

// eligibleCampaigns narrows the active campaign set to those applicable to
// the order. Ineligible campaigns are excluded silently.
func (s *PromotionService) eligibleCampaigns(ctx context.Context, order *domain.Order, user *domain.UserContext) ([]domain.Campaign, error) {
	now := time.Now().UTC()

	active, err := s.campaigns.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	eligible := make([]domain.Campaign, 0, len(active))
	for _, c := range active {
		if !campaignEligible(&c, order, user) {
			continue
		}

		if c.UsageConditions.UserUsageLimit > 0 && user != nil && user.ID != "" {
			used, err := s.campaigns.CountUserUsage(ctx, c.ID, user.ID)
			if err != nil {
				return nil, fmt.Errorf("count user usage for campaign %s: %w", c.ID, err)
			}
			if used >= c.UsageConditions.UserUsageLimit {
				continue
			}
		}

		eligible = append(eligible, c)
	}

	return eligible, nil
}

// campaignEligible applies the per-campaign eligibility rules that need no
// extra I/O. The repository already guarantees active status and date range.
func campaignEligible(c *domain.Campaign, order *domain.Order, user *domain.UserContext) bool {
	uc := c.UsageConditions

	if uc.UsageLimit > 0 && c.Usage.TotalUsed >= uc.UsageLimit {
		return false
	}

	if uc.MinimumOrderAmount != nil && order.Subtotal < *uc.MinimumOrderAmount {
		return false
	}
	if uc.MaximumOrderAmount != nil && order.Subtotal > *uc.MaximumOrderAmount {
		return false
	}

	if len(uc.AllowedProductIDs) > 0 && !anyItemMatches(order.Items, uc.AllowedProductIDs, productID) {
		return false
	}
	if len(uc.ExcludedProductIDs) > 0 && anyItemMatches(order.Items, uc.ExcludedProductIDs, productID) {
		return false
	}
	if len(uc.AllowedCategoryIDs) > 0 && !anyItemMatches(order.Items, uc.AllowedCategoryIDs, categoryID) {
		return false
	}
	if len(uc.ExcludedCategoryIDs) > 0 && anyItemMatches(order.Items, uc.ExcludedCategoryIDs, categoryID) {
		return false
	}

	if uc.RequiredCouponCode != "" {
		if !strings.EqualFold(order.CouponCode, uc.RequiredCouponCode) {
			return false
		}
	}

	if c.DiscountConfig.Kind == domain.DiscountKindFreeShipping {
		if fs := c.DiscountConfig.FreeShipping; fs != nil && fs.MinimumOrderAmount != nil && order.Subtotal < *fs.MinimumOrderAmount {
			return false
		}
	}

	return c.TargetAudience.Matches(user)
}

func productID(item domain.OrderItem) string  { return item.ProductID }
func categoryID(item domain.OrderItem) string { return item.CategoryID }

func anyItemMatches(items []domain.OrderItem, ids []string, key func(domain.OrderItem) string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, item := range items {
		if _, ok := set[key(item)]; ok {
			return true
		}
	}
	return false
}

// resolveDiscounts runs the stacking algorithm over the eligible set. Each
// campaign's discount compounds against the remaining amount, not the
// original subtotal. The iteration stops entirely once a non-stackable
// campaign has been applied: only one non-stackable promotion may ever apply
// to an order, and nothing after it is evaluated.
func resolveDiscounts(eligible []domain.Campaign, order *domain.Order) *domain.DiscountCalculationResult {
	sorted := make([]domain.Campaign, len(eligible))
	copy(sorted, eligible)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	result := &domain.DiscountCalculationResult{
		OriginalAmount:    order.Subtotal,
		AppliedPromotions: []domain.AppliedPromotion{},
		Messages:          []string{},
	}

	currentAmount := order.Subtotal
	appliedIDs := make(map[string]struct{})

	for i := range sorted {
		c := &sorted[i]

		// Re-entry guard; each id is visited once in a single pass.
		if _, ok := appliedIDs[c.ID]; ok && !c.IsStackable {
			continue
		}

		discount := computeDiscount(c, order, currentAmount)

		currentAmount -= discount
		appliedIDs[c.ID] = struct{}{}

		result.AppliedPromotions = append(result.AppliedPromotions, domain.AppliedPromotion{
			CampaignID:     c.ID,
			CampaignName:   c.Name,
			DiscountAmount: discount,
			DiscountKind:   c.DiscountConfig.Kind,
		})

		if c.DiscountConfig.Kind == domain.DiscountKindFreeShipping {
			result.FreeShipping = true
			result.Messages = append(result.Messages, fmt.Sprintf("%s: free shipping", c.Name))
		} else {
			result.Messages = append(result.Messages, fmt.Sprintf("%s: saved %d", c.Name, discount))
		}

		if !c.IsStackable {
			break
		}
	}

	result.DiscountAmount = order.Subtotal - currentAmount
	if currentAmount < 0 {
		currentAmount = 0
	}
	result.FinalAmount = currentAmount

	return result
}

// computeDiscount evaluates one campaign's discount against the remaining
// amount. Every branch is capped so no single step can exceed what is left.
func computeDiscount(c *domain.Campaign, order *domain.Order, currentAmount int64) int64 {
	switch c.DiscountConfig.Kind {
	case domain.DiscountKindPercentage:
		p := c.DiscountConfig.Percentage
		discount := int64(float64(currentAmount) * p.Percentage / 100)
		if p.MaxAmount != nil && discount > *p.MaxAmount {
			discount = *p.MaxAmount
		}
		return discount

	case domain.DiscountKindFixedAmount:
		discount := c.DiscountConfig.Fixed.Amount
		if discount > currentAmount {
			discount = currentAmount
		}
		return discount

	case domain.DiscountKindBuyXGetY:
		discount := buyXGetYDiscount(c.DiscountConfig.BuyXGetY, order.Items)
		if discount > currentAmount {
			discount = currentAmount
		}
		return discount

	case domain.DiscountKindFreeShipping:
		return 0

	default:
		return 0
	}
}

// buyXGetYDiscount groups order items by product and prices the reward
// units. A qualifying set consumes BuyQuantity paid units plus GetQuantity
// reward units out of the purchased quantity, so buy-1-get-1 on two units
// yields exactly one reward unit, not two.
func buyXGetYDiscount(cfg *domain.BuyXGetYDiscount, items []domain.OrderItem) int64 {
	type group struct {
		quantity  int
		unitPrice int64
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(items))
	for _, item := range items {
		g, ok := groups[item.ProductID]
		if !ok {
			g = &group{unitPrice: item.Price}
			groups[item.ProductID] = g
			order = append(order, item.ProductID)
		}
		g.quantity += item.Quantity
	}

	var total int64
	for _, id := range order {
		g := groups[id]

		qualifyingSets := g.quantity / (cfg.BuyQuantity + cfg.GetQuantity)
		if qualifyingSets == 0 {
			continue
		}
		freeQty := int64(qualifyingSets * cfg.GetQuantity)

		switch cfg.RewardType {
		case domain.BuyXGetYRewardFree:
			total += freeQty * g.unitPrice
		case domain.BuyXGetYRewardPercentage:
			total += int64(float64(freeQty*g.unitPrice) * cfg.RewardValue / 100)
		case domain.BuyXGetYRewardFixed:
			discount := freeQty * int64(cfg.RewardValue)
			if max := freeQty * g.unitPrice; discount > max {
				discount = max
			}
			total += discount
		}
	}

	return total
}

func validateOrder(order *domain.Order) error {
	if order == nil {
		return apperrors.InvalidInput("order is required")
	}
	if order.Subtotal < 0 {
		return apperrors.Validation("subtotal", "must not be negative")
	}
	for i, item := range order.Items {
		if item.ProductID == "" {
			return apperrors.Validation(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity <= 0 {
			return apperrors.Validation(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.Price < 0 {
			return apperrors.Validation(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
	}
	return nil
}
