package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

// Discount kind constants. Exactly one variant of DiscountConfig is active
// per campaign, selected by Kind.
const (
	DiscountKindPercentage   = "percentage"
	DiscountKindFixedAmount  = "fixed_amount"
	DiscountKindBuyXGetY     = "buy_x_get_y"
	DiscountKindFreeShipping = "free_shipping"
)

// Campaign status constants.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusEnded     = "ended"
	CampaignStatusCancelled = "cancelled"
)

// BuyXGetY reward type constants.
const (
	BuyXGetYRewardFree       = "free"
	BuyXGetYRewardPercentage = "percentage"
	BuyXGetYRewardFixed      = "fixed"
)

// Target audience kind constants.
const (
	AudienceAllUsers           = "all_users"
	AudienceFirstTimeBuyers    = "first_time_buyers"
	AudienceReturningCustomers = "returning_customers"
	AudienceVipMembers         = "vip_members"
	AudienceSpecificUsers      = "specific_users"
	AudienceUserGroups         = "user_groups"
)

// User type constants carried in UserContext.
const (
	UserTypeNew       = "new"
	UserTypeReturning = "returning"
	UserTypeVip       = "vip"
)

// Campaign represents a promotional campaign. All monetary amounts are in
// minor currency units (e.g. cents).
type Campaign struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	DiscountConfig  DiscountConfig  `json:"discount_config"`
	UsageConditions UsageConditions `json:"usage_conditions"`
	TargetAudience  TargetAudience  `json:"target_audience"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	Priority        int             `json:"priority"`
	IsStackable     bool            `json:"is_stackable"`
	Usage           UsageStats      `json:"usage"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DiscountConfig is a tagged union: Kind selects which payload pointer is
// set. Consumers must switch exhaustively on Kind so a new discount kind
// forces review of every call site.
type DiscountConfig struct {
	Kind         string                `json:"kind"`
	Percentage   *PercentageDiscount   `json:"percentage,omitempty"`
	Fixed        *FixedDiscount        `json:"fixed,omitempty"`
	BuyXGetY     *BuyXGetYDiscount     `json:"buy_x_get_y,omitempty"`
	FreeShipping *FreeShippingDiscount `json:"free_shipping,omitempty"`
}

// PercentageDiscount takes a percentage off the remaining amount, optionally
// capped at MaxAmount.
type PercentageDiscount struct {
	Percentage float64 `json:"percentage"`
	MaxAmount  *int64  `json:"max_amount,omitempty"`
}

// FixedDiscount subtracts a flat amount, clamped to the remaining amount.
type FixedDiscount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// BuyXGetYDiscount grants GetQuantity reward units per BuyQuantity purchased
// units of the same product. RewardType selects how the reward units are
// priced; RewardValue is a percentage for "percentage" and a per-unit amount
// for "fixed", unused for "free".
type BuyXGetYDiscount struct {
	BuyQuantity int     `json:"buy_quantity"`
	GetQuantity int     `json:"get_quantity"`
	RewardType  string  `json:"reward_type"`
	RewardValue float64 `json:"reward_value,omitempty"`
}

// FreeShippingDiscount waives shipping, optionally gated on a minimum order
// amount. It contributes nothing to the monetary discount.
type FreeShippingDiscount struct {
	MinimumOrderAmount *int64 `json:"minimum_order_amount,omitempty"`
}

// UsageConditions restrict when a campaign is eligible for an order.
// Zero-valued limits mean unlimited.
type UsageConditions struct {
	MinimumOrderAmount  *int64   `json:"minimum_order_amount,omitempty"`
	MaximumOrderAmount  *int64   `json:"maximum_order_amount,omitempty"`
	AllowedProductIDs   []string `json:"allowed_product_ids,omitempty"`
	ExcludedProductIDs  []string `json:"excluded_product_ids,omitempty"`
	AllowedCategoryIDs  []string `json:"allowed_category_ids,omitempty"`
	ExcludedCategoryIDs []string `json:"excluded_category_ids,omitempty"`
	UsageLimit          int64    `json:"usage_limit,omitempty"`
	UserUsageLimit      int64    `json:"user_usage_limit,omitempty"`
	RequiredCouponCode  string   `json:"required_coupon_code,omitempty"`
}

// TargetAudience is a tagged union selecting which users a campaign may
// apply to. SpecificUsers and UserGroups carry their id sets in the
// matching payload pointer.
type TargetAudience struct {
	Kind          string                 `json:"kind"`
	SpecificUsers *SpecificUsersAudience `json:"specific_users,omitempty"`
	UserGroups    *UserGroupsAudience    `json:"user_groups,omitempty"`
}

// SpecificUsersAudience limits a campaign to an explicit set of user ids.
type SpecificUsersAudience struct {
	UserIDs []string `json:"user_ids"`
}

// UserGroupsAudience limits a campaign to members of the given groups.
type UserGroupsAudience struct {
	GroupIDs []string `json:"group_ids"`
}

// UsageStats tracks aggregate consumption of a campaign.
type UsageStats struct {
	TotalUsed    int64 `json:"total_used"`
	TotalSavings int64 `json:"total_savings"`
	UniqueUsers  int64 `json:"unique_users"`
}

// ValidStatuses returns the set of valid campaign statuses.
func ValidStatuses() []string {
	return []string{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusActive,
		CampaignStatusPaused,
		CampaignStatusEnded,
		CampaignStatusCancelled,
	}
}

// IsValidStatus checks whether the given status string is a valid campaign status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ValidDiscountKinds returns the set of valid discount kinds.
func ValidDiscountKinds() []string {
	return []string{
		DiscountKindPercentage,
		DiscountKindFixedAmount,
		DiscountKindBuyXGetY,
		DiscountKindFreeShipping,
	}
}

// Validate checks the discount config for structural and range errors.
func (d *DiscountConfig) Validate() error {
	switch d.Kind {
	case DiscountKindPercentage:
		if d.Percentage == nil {
			return apperrors.Validation("discount_config.percentage", "payload is required for kind percentage")
		}
		if d.Percentage.Percentage < 0 || d.Percentage.Percentage > 100 {
			return apperrors.Validation("discount_config.percentage.percentage", "must be between 0 and 100")
		}
		if d.Percentage.MaxAmount != nil && *d.Percentage.MaxAmount <= 0 {
			return apperrors.Validation("discount_config.percentage.max_amount", "must be positive when set")
		}
	case DiscountKindFixedAmount:
		if d.Fixed == nil {
			return apperrors.Validation("discount_config.fixed", "payload is required for kind fixed_amount")
		}
		if d.Fixed.Amount <= 0 {
			return apperrors.Validation("discount_config.fixed.amount", "must be positive")
		}
		if d.Fixed.Currency == "" {
			return apperrors.Validation("discount_config.fixed.currency", "is required")
		}
	case DiscountKindBuyXGetY:
		if d.BuyXGetY == nil {
			return apperrors.Validation("discount_config.buy_x_get_y", "payload is required for kind buy_x_get_y")
		}
		if d.BuyXGetY.BuyQuantity <= 0 {
			return apperrors.Validation("discount_config.buy_x_get_y.buy_quantity", "must be positive")
		}
		if d.BuyXGetY.GetQuantity <= 0 {
			return apperrors.Validation("discount_config.buy_x_get_y.get_quantity", "must be positive")
		}
		switch d.BuyXGetY.RewardType {
		case BuyXGetYRewardFree:
		case BuyXGetYRewardPercentage, BuyXGetYRewardFixed:
			if d.BuyXGetY.RewardValue <= 0 {
				return apperrors.Validation("discount_config.buy_x_get_y.reward_value", "must be positive for reward type "+d.BuyXGetY.RewardType)
			}
		default:
			return apperrors.Validation("discount_config.buy_x_get_y.reward_type", "must be one of: free, percentage, fixed")
		}
	case DiscountKindFreeShipping:
		if d.FreeShipping == nil {
			return apperrors.Validation("discount_config.free_shipping", "payload is required for kind free_shipping")
		}
		if d.FreeShipping.MinimumOrderAmount != nil && *d.FreeShipping.MinimumOrderAmount < 0 {
			return apperrors.Validation("discount_config.free_shipping.minimum_order_amount", "must not be negative")
		}
	default:
		return apperrors.Validation("discount_config.kind", fmt.Sprintf("unknown discount kind %q", d.Kind))
	}
	return nil
}

// Validate checks the usage conditions for range errors.
func (u *UsageConditions) Validate() error {
	if u.MinimumOrderAmount != nil && *u.MinimumOrderAmount < 0 {
		return apperrors.Validation("usage_conditions.minimum_order_amount", "must not be negative")
	}
	if u.MaximumOrderAmount != nil && *u.MaximumOrderAmount <= 0 {
		return apperrors.Validation("usage_conditions.maximum_order_amount", "must be positive when set")
	}
	if u.MinimumOrderAmount != nil && u.MaximumOrderAmount != nil && *u.MinimumOrderAmount >= *u.MaximumOrderAmount {
		return apperrors.Validation("usage_conditions.minimum_order_amount", "must be less than maximum_order_amount")
	}
	if u.UsageLimit < 0 {
		return apperrors.Validation("usage_conditions.usage_limit", "must not be negative")
	}
	if u.UserUsageLimit < 0 {
		return apperrors.Validation("usage_conditions.user_usage_limit", "must not be negative")
	}
	return nil
}

// Validate checks the audience union for structural errors.
func (t *TargetAudience) Validate() error {
	switch t.Kind {
	case AudienceAllUsers, AudienceFirstTimeBuyers, AudienceReturningCustomers, AudienceVipMembers:
	case AudienceSpecificUsers:
		if t.SpecificUsers == nil || len(t.SpecificUsers.UserIDs) == 0 {
			return apperrors.Validation("target_audience.specific_users.user_ids", "must not be empty")
		}
	case AudienceUserGroups:
		if t.UserGroups == nil || len(t.UserGroups.GroupIDs) == 0 {
			return apperrors.Validation("target_audience.user_groups.group_ids", "must not be empty")
		}
	default:
		return apperrors.Validation("target_audience.kind", fmt.Sprintf("unknown audience kind %q", t.Kind))
	}
	return nil
}

// Matches reports whether the audience admits the given user. A nil user
// matches only the all_users audience.
func (t *TargetAudience) Matches(user *UserContext) bool {
	switch t.Kind {
	case AudienceAllUsers:
		return true
	case AudienceFirstTimeBuyers:
		return user != nil && user.Type == UserTypeNew
	case AudienceReturningCustomers:
		return user != nil && user.Type == UserTypeReturning
	case AudienceVipMembers:
		return user != nil && user.Type == UserTypeVip
	case AudienceSpecificUsers:
		if user == nil || user.ID == "" || t.SpecificUsers == nil {
			return false
		}
		for _, id := range t.SpecificUsers.UserIDs {
			if id == user.ID {
				return true
			}
		}
		return false
	case AudienceUserGroups:
		if user == nil || t.UserGroups == nil {
			return false
		}
		for _, allowed := range t.UserGroups.GroupIDs {
			for _, g := range user.GroupIDs {
				if g == allowed {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// Validate checks all campaign invariants. It is called before any create
// or update is persisted.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return apperrors.Validation("name", "is required")
	}
	if !c.StartDate.Before(c.EndDate) {
		return apperrors.Validation("start_date", "must be before end_date")
	}
	if c.Status != "" && !IsValidStatus(c.Status) {
		return apperrors.Validation("status", fmt.Sprintf("unknown status %q", c.Status))
	}
	if err := c.DiscountConfig.Validate(); err != nil {
		return err
	}
	if err := c.UsageConditions.Validate(); err != nil {
		return err
	}
	return c.TargetAudience.Validate()
}

// IsRunning reports whether the campaign is active and now falls within its
// date range.
func (c *Campaign) IsRunning(now time.Time) bool {
	return c.Status == CampaignStatusActive &&
		!now.Before(c.StartDate) &&
		!now.After(c.EndDate)
}

// IsTerminal reports whether the campaign is in a terminal state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusEnded || c.Status == CampaignStatusCancelled
}

// Activate transitions the campaign into scheduled or active depending on
// whether its start date has arrived. Allowed from draft, scheduled, and
// paused. Activating a campaign whose end date has passed is an error.
func (c *Campaign) Activate(now time.Time) error {
	if c.EndDate.Before(now) {
		return apperrors.Conflict("campaign has already ended")
	}

	switch c.Status {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusPaused:
		if c.StartDate.After(now) {
			c.Status = CampaignStatusScheduled
		} else {
			c.Status = CampaignStatusActive
		}
		return nil
	case CampaignStatusActive:
		return apperrors.Conflict("campaign is already active")
	default:
		return apperrors.Conflict(fmt.Sprintf("cannot activate campaign in status %s", c.Status))
	}
}

// Deactivate pauses an active or scheduled campaign.
func (c *Campaign) Deactivate() error {
	switch c.Status {
	case CampaignStatusActive, CampaignStatusScheduled:
		c.Status = CampaignStatusPaused
		return nil
	default:
		return apperrors.Conflict(fmt.Sprintf("cannot deactivate campaign in status %s", c.Status))
	}
}

// End moves an active or scheduled campaign into the terminal ended state.
func (c *Campaign) End() error {
	switch c.Status {
	case CampaignStatusActive, CampaignStatusScheduled:
		c.Status = CampaignStatusEnded
		return nil
	default:
		return apperrors.Conflict(fmt.Sprintf("cannot end campaign in status %s", c.Status))
	}
}

// Cancel moves any non-terminal campaign into the terminal cancelled state.
func (c *Campaign) Cancel() error {
	if c.IsTerminal() {
		return apperrors.Conflict(fmt.Sprintf("cannot cancel campaign in status %s", c.Status))
	}
	c.Status = CampaignStatusCancelled
	return nil
}
