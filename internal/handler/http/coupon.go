package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/promotion-service/internal/domain"
	"github.com/utafrali/promotion-service/internal/service"
	"github.com/utafrali/promotion-service/pkg/validator"
)

// CouponHandler handles HTTP requests for coupon endpoints.
type CouponHandler struct {
	service *service.CouponService
	logger  *slog.Logger
}

// NewCouponHandler creates a new coupon HTTP handler.
func NewCouponHandler(svc *service.CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// GenerateCouponsRequest is the JSON request body for generating a coupon batch.
type GenerateCouponsRequest struct {
	Prefix              string `json:"prefix" validate:"max=20"`
	Suffix              string `json:"suffix" validate:"max=20"`
	Length              int    `json:"length" validate:"required,gt=0,lte=64"`
	IncludeNumbers      bool   `json:"include_numbers"`
	IncludeLetters      bool   `json:"include_letters"`
	IncludeSpecialChars bool   `json:"include_special_chars"`
	ExcludeSimilarChars bool   `json:"exclude_similar_chars"`
	Quantity            int    `json:"quantity" validate:"required,gt=0,lte=10000"`
	ExpirationDays      *int   `json:"expiration_days" validate:"omitempty,gt=0"`
}

// ValidateCouponRequest is the JSON request body for validating a coupon.
type ValidateCouponRequest struct {
	Code string              `json:"code" validate:"required"`
	User *UserContextRequest `json:"user"`
}

// RedeemCouponRequest is the JSON request body for redeeming a coupon.
type RedeemCouponRequest struct {
	Code   string `json:"code" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

// --- Handlers ---

// GenerateCoupons handles POST /api/v1/campaigns/{id}/coupons
func (h *CouponHandler) GenerateCoupons(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	campaignID := chi.URLParam(r, "id")
	if campaignID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	var req GenerateCouponsRequest
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

	cfg := &domain.CouponGenerationConfig{
		Prefix:              req.Prefix,
		Suffix:              req.Suffix,
		Length:              req.Length,
		IncludeNumbers:      req.IncludeNumbers,
		IncludeLetters:      req.IncludeLetters,
		IncludeSpecialChars: req.IncludeSpecialChars,
		ExcludeSimilarChars: req.ExcludeSimilarChars,
		Quantity:            req.Quantity,
		ExpirationDays:      req.ExpirationDays,
	}

	coupons, err := h.service.GenerateCoupons(r.Context(), campaignID, cfg)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: coupons})
}

// ListCoupons handles GET /api/v1/campaigns/{id}/coupons
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if campaignID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	page := 1
	perPage := 50
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if pp, err := strconv.Atoi(v); err == nil && pp > 0 && pp <= 100 {
			perPage = pp
		}
	}

	coupons, total, err := h.service.ListCoupons(r.Context(), campaignID, page, perPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       coupons,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

// ValidateCoupon handles POST /api/v1/coupons/validate
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req ValidateCouponRequest
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

	var user *domain.UserContext
	if req.User != nil {
		user = &domain.UserContext{
			ID:       req.User.ID,
			Type:     req.User.Type,
			GroupIDs: req.User.GroupIDs,
		}
	}

	result, err := h.service.ValidateCoupon(r.Context(), req.Code, user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}

// RedeemCoupon handles POST /api/v1/coupons/redeem
func (h *CouponHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req RedeemCouponRequest
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

	coupon, err := h.service.RedeemCoupon(r.Context(), req.Code, req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: coupon})
}
