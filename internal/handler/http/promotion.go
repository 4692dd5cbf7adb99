package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/utafrali/promotion-service/internal/client"
	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/service"
	"github.com/utafrali/promotion-service/pkg/validator"
)

// PromotionHandler handles HTTP requests for discount calculation endpoints.
type PromotionHandler struct {
	service *service.PromotionService
	users   *client.UserClient
	logger  *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler. The user client
// is optional; without it, audience targeting only sees the segment data the
// caller supplies inline.
func NewPromotionHandler(svc *service.PromotionService, users *client.UserClient, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: svc,
		users:   users,
		logger:  logger,
	}
}

// --- Request DTOs ---

// OrderItemRequest is one order line item in a discount request.
type OrderItemRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	Price      int64  `json:"price" validate:"gte=0"`
}

// UserContextRequest describes the ordering user in a discount request.
type UserContextRequest struct {
	ID       string   `json:"id"`
	Type     string   `json:"type" validate:"omitempty,oneof=new returning vip"`
	GroupIDs []string `json:"group_ids"`
}

// CalculateDiscountRequest is the JSON request body for calculating discounts.
type CalculateDiscountRequest struct {
	Items          []OrderItemRequest  `json:"items" validate:"required,min=1,dive"`
	Subtotal       int64               `json:"subtotal" validate:"gte=0"`
	CouponCode     string              `json:"coupon_code"`
	ShippingAmount int64               `json:"shipping_amount" validate:"gte=0"`
	User           *UserContextRequest `json:"user"`
}

// ApplyDiscountRequest is the JSON request body for applying discounts to an order.
type ApplyDiscountRequest struct {
	OrderID        string              `json:"order_id" validate:"required"`
	Items          []OrderItemRequest  `json:"items" validate:"required,min=1,dive"`
	Subtotal       int64               `json:"subtotal" validate:"gte=0"`
	CouponCode     string              `json:"coupon_code"`
	ShippingAmount int64               `json:"shipping_amount" validate:"gte=0"`
	User           *UserContextRequest `json:"user"`
}

// --- Handlers ---

// CalculateDiscount handles POST /api/v1/discounts/calculate
func (h *PromotionHandler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CalculateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	order, user := toDomainOrder(req.Items, req.Subtotal, req.CouponCode, req.ShippingAmount, req.User)
	user = h.enrichUser(r.Context(), user)

	result, err := h.service.CalculateDiscount(r.Context(), order, user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}

// ApplyDiscount handles POST /api/v1/discounts/apply
func (h *PromotionHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req ApplyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	order, user := toDomainOrder(req.Items, req.Subtotal, req.CouponCode, req.ShippingAmount, req.User)
	user = h.enrichUser(r.Context(), user)

	result, err := h.service.ApplyDiscount(r.Context(), req.OrderID, order, user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: result})
}

// enrichUser fills in segment data from the user service when the request
// only carried a user id. Lookup failures fall back to the inline context so
// a user service outage degrades targeting, not checkout.
func (h *PromotionHandler) enrichUser(ctx context.Context, user *domain.UserContext) *domain.UserContext {
	if h.users == nil || user == nil || user.ID == "" {
		return user
	}
	if user.Type != "" || len(user.GroupIDs) > 0 {
		return user
	}

	resolved, err := h.users.GetUserContext(ctx, user.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "user context lookup failed, using inline context",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return user
	}
	return resolved
}

func toDomainOrder(items []OrderItemRequest, subtotal int64, couponCode string, shippingAmount int64, user *UserContextRequest) (*domain.Order, *domain.UserContext) {
	order := &domain.Order{
		Items:          make([]domain.OrderItem, 0, len(items)),
		Subtotal:       subtotal,
		CouponCode:     couponCode,
		ShippingAmount: shippingAmount,
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:  item.ProductID,
			CategoryID: item.CategoryID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}

	var ctx *domain.UserContext
	if user != nil {
		order.UserID = user.ID
		ctx = &domain.UserContext{
			ID:       user.ID,
			Type:     user.Type,
			GroupIDs: user.GroupIDs,
		}
	}

	return order, ctx
}
