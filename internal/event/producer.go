package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/promotion-service/pkg/kafka"
	"github.com/utafrali/promotion-service/internal/domain"
)

// Kafka topic constants for promotion domain events.
const (
	TopicCampaignCreated   = "ecommerce.promotion.campaign_created"
	TopicCampaignUpdated   = "ecommerce.promotion.campaign_updated"
	TopicCampaignActivated = "ecommerce.promotion.campaign_activated"
	TopicDiscountApplied   = "ecommerce.promotion.discount_applied"
	TopicCouponsGenerated  = "ecommerce.promotion.coupons_generated"
	TopicCouponRedeemed    = "ecommerce.promotion.coupon_redeemed"
)

// Aggregate type constant.
const AggregateTypeCampaign = "campaign"

// Source identifier for events originating from the promotion service.
const SourcePromotionService = "promotion-service"

// CampaignCreatedData is the payload for a campaign_created event.
type CampaignCreatedData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DiscountKind string `json:"discount_kind"`
	Priority     int    `json:"priority"`
	IsStackable  bool   `json:"is_stackable"`
}

// CampaignUpdatedData is the payload for a campaign_updated event.
type CampaignUpdatedData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DiscountKind string `json:"discount_kind"`
}

// CampaignActivatedData is the payload for a campaign_activated event.
type CampaignActivatedData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DiscountAppliedData is the payload for a discount_applied event. One event
// is published per order, covering every campaign that contributed.
type DiscountAppliedData struct {
	OrderID        string                    `json:"order_id"`
	UserID         string                    `json:"user_id,omitempty"`
	OriginalAmount int64                     `json:"original_amount"`
	DiscountAmount int64                     `json:"discount_amount"`
	FinalAmount    int64                     `json:"final_amount"`
	FreeShipping   bool                      `json:"free_shipping"`
	Promotions     []domain.AppliedPromotion `json:"promotions"`
}

// CouponsGeneratedData is the payload for a coupons_generated event.
type CouponsGeneratedData struct {
	CampaignID string `json:"campaign_id"`
	Quantity   int    `json:"quantity"`
}

// CouponRedeemedData is the payload for a coupon_redeemed event.
type CouponRedeemedData struct {
	Code       string `json:"code"`
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
}

// Producer publishes promotion domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the promotion service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCampaignCreated publishes a campaign_created event.
func (p *Producer) PublishCampaignCreated(ctx context.Context, campaign *domain.Campaign) error {
	data := CampaignCreatedData{
		ID:           campaign.ID,
		Name:         campaign.Name,
		Status:       campaign.Status,
		DiscountKind: campaign.DiscountConfig.Kind,
		Priority:     campaign.Priority,
		IsStackable:  campaign.IsStackable,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignCreated, campaign.ID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create campaign_created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignCreated, event); err != nil {
		return fmt.Errorf("publish campaign_created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign_created event",
		slog.String("campaign_id", campaign.ID),
		slog.String("discount_kind", campaign.DiscountConfig.Kind),
	)

	return nil
}

// PublishCampaignUpdated publishes a campaign_updated event.
func (p *Producer) PublishCampaignUpdated(ctx context.Context, campaign *domain.Campaign) error {
	data := CampaignUpdatedData{
		ID:           campaign.ID,
		Name:         campaign.Name,
		Status:       campaign.Status,
		DiscountKind: campaign.DiscountConfig.Kind,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignUpdated, campaign.ID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create campaign_updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignUpdated, event); err != nil {
		return fmt.Errorf("publish campaign_updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign_updated event",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return nil
}

// PublishCampaignActivated publishes a campaign_activated event.
func (p *Producer) PublishCampaignActivated(ctx context.Context, campaign *domain.Campaign) error {
	data := CampaignActivatedData{
		ID:     campaign.ID,
		Name:   campaign.Name,
		Status: campaign.Status,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignActivated, campaign.ID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create campaign_activated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignActivated, event); err != nil {
		return fmt.Errorf("publish campaign_activated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign_activated event",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return nil
}

// PublishDiscountApplied publishes a discount_applied event for an order.
func (p *Producer) PublishDiscountApplied(ctx context.Context, orderID, userID string, result *domain.DiscountCalculationResult) error {
	data := DiscountAppliedData{
		OrderID:        orderID,
		UserID:         userID,
		OriginalAmount: result.OriginalAmount,
		DiscountAmount: result.DiscountAmount,
		FinalAmount:    result.FinalAmount,
		FreeShipping:   result.FreeShipping,
		Promotions:     result.AppliedPromotions,
	}

	event, err := pkgkafka.NewEvent(TopicDiscountApplied, orderID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create discount_applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDiscountApplied, event); err != nil {
		return fmt.Errorf("publish discount_applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published discount_applied event",
		slog.String("order_id", orderID),
		slog.Int64("discount_amount", result.DiscountAmount),
	)

	return nil
}

// PublishCouponsGenerated publishes a coupons_generated event.
func (p *Producer) PublishCouponsGenerated(ctx context.Context, campaignID string, quantity int) error {
	data := CouponsGeneratedData{
		CampaignID: campaignID,
		Quantity:   quantity,
	}

	event, err := pkgkafka.NewEvent(TopicCouponsGenerated, campaignID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create coupons_generated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCouponsGenerated, event); err != nil {
		return fmt.Errorf("publish coupons_generated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published coupons_generated event",
		slog.String("campaign_id", campaignID),
		slog.Int("quantity", quantity),
	)

	return nil
}

// PublishCouponRedeemed publishes a coupon_redeemed event.
func (p *Producer) PublishCouponRedeemed(ctx context.Context, coupon *domain.CouponCode, userID string) error {
	data := CouponRedeemedData{
		Code:       coupon.Code,
		CampaignID: coupon.CampaignID,
		UserID:     userID,
	}

	event, err := pkgkafka.NewEvent(TopicCouponRedeemed, coupon.CampaignID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create coupon_redeemed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCouponRedeemed, event); err != nil {
		return fmt.Errorf("publish coupon_redeemed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published coupon_redeemed event",
		slog.String("code", coupon.Code),
		slog.String("campaign_id", coupon.CampaignID),
	)

	return nil
}
