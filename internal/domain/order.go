package domain

// OrderItem is a single line item on an order under evaluation. Price is the
// unit price in minor currency units.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

// Order is the snapshot of a checkout handed to the discount engine.
type Order struct {
	Items          []OrderItem `json:"items"`
	Subtotal       int64       `json:"subtotal"`
	UserID         string      `json:"user_id,omitempty"`
	CouponCode     string      `json:"coupon_code,omitempty"`
	ShippingAmount int64       `json:"shipping_amount,omitempty"`
}

// UserContext describes the user placing the order, used for audience
// matching and per-user usage limits. All fields are optional.
type UserContext struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// AppliedPromotion records one campaign's contribution to an order.
type AppliedPromotion struct {
	CampaignID     string `json:"campaign_id"`
	CampaignName   string `json:"campaign_name"`
	DiscountAmount int64  `json:"discount_amount"`
	DiscountKind   string `json:"discount_kind"`
}

// DiscountCalculationResult is the outcome of evaluating all eligible
// campaigns against an order.
type DiscountCalculationResult struct {
	OriginalAmount    int64              `json:"original_amount"`
	DiscountAmount    int64              `json:"discount_amount"`
	FinalAmount       int64              `json:"final_amount"`
	AppliedPromotions []AppliedPromotion `json:"applied_promotions"`
	FreeShipping      bool               `json:"free_shipping"`
	Messages          []string           `json:"messages"`
}
