package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/rateLimit"
)

const (
	rateLimitPerMinute = 60
	rateLimitPeriod    = time.Minute
)

// SetupRouter wires the public API. The webhook route sits outside the
// rate-limit and idempotency-key group: the processor signs its own
// deliveries and retries on anything but 2xx, so throttling it or demanding
// client headers would only delay confirmations.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl, rateLimitPerMinute, rateLimitPeriod))
		r.Use(IdempotencyKeyMiddleware)

		r.Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Post("/v1/bookings/{id}/payment-intent", h.CreatePaymentIntent)
		r.Post("/v1/bookings/{id}/confirmation", h.ClientConfirmation)
		r.Post("/v1/bookings/{id}/refund", h.RefundDeposit)
		r.Get("/v1/geocode", h.Geocode)
	})

	r.Post("/v1/payments/webhook", h.PaymentWebhook)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
