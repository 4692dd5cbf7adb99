package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/promotion-service/internal/client"
	"github.com/utafrali/promotion-service/internal/service"
	"github.com/utafrali/promotion-service/pkg/health"
	"github.com/utafrali/promotion-service/pkg/middleware"
)

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(
	campaignService *service.CampaignService,
	promotionService *service.PromotionService,
	couponService *service.CouponService,
	userClient *client.UserClient,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("promotion"))
	r.Use(middleware.Tracing("promotion"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	campaignHandler := NewCampaignHandler(campaignService, logger)
	promotionHandler := NewPromotionHandler(promotionService, userClient, logger)
	couponHandler := NewCouponHandler(couponService, logger)

	r.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", campaignHandler.CreateCampaign)
		r.Get("/", campaignHandler.ListCampaigns)

		r.Get("/{id}", campaignHandler.GetCampaign)
		r.Put("/{id}", campaignHandler.UpdateCampaign)
		r.Delete("/{id}", campaignHandler.DeleteCampaign)

		r.Post("/{id}/activate", campaignHandler.ActivateCampaign)
		r.Post("/{id}/deactivate", campaignHandler.DeactivateCampaign)
		r.Post("/{id}/end", campaignHandler.EndCampaign)
		r.Post("/{id}/cancel", campaignHandler.CancelCampaign)

		r.Post("/{id}/coupons", couponHandler.GenerateCoupons)
		r.Get("/{id}/coupons", couponHandler.ListCoupons)
	})

	r.Route("/api/v1/coupons", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/validate", couponHandler.ValidateCoupon)
		r.Post("/redeem", couponHandler.RedeemCoupon)
	})

	r.Route("/api/v1/discounts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/calculate", promotionHandler.CalculateDiscount)
		r.Post("/apply", promotionHandler.ApplyDiscount)
	})

	return r
}
