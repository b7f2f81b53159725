// Package handler exposes the coupon engine and checkout flow over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopfloor/coupon-engine/internal/domain/checkout"
	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

// CouponStore extends the engine's coupon lookups with creation, used by
// the admin endpoint.
type CouponStore interface {
	coupon.Repository
	Create(ctx context.Context, c *coupon.Coupon) error
}

// Handler holds the HTTP endpoints and their dependencies.
type Handler struct {
	coupons  CouponStore
	engine   *coupon.Engine
	checkout *checkout.Service
	metrics  handlerMetrics
	tracer   trace.Tracer
	security *Security
}

// New constructs a Handler with the required dependencies. Telemetry is a
// no-op unless configured through options.
func New(coupons CouponStore, engine *coupon.Engine, checkoutSvc *checkout.Service, opts ...Option) *Handler {
	h := &Handler{
		coupons:  coupons,
		engine:   engine,
		checkout: checkoutSvc,
	}
	noopTelemetry(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts all API routes on the mux. The mutating endpoints
// require a valid API key when security is configured.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons", h.security.protect(h.CreateCoupon))
	mux.HandleFunc("GET /api/coupons/{code}", h.GetCoupon)
	mux.HandleFunc("POST /api/coupons/validate", h.ValidateCoupon)
	mux.HandleFunc("POST /api/orders", h.security.protect(h.PlaceOrder))
}

// writeDomainError maps domain errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *coupon.Rejection
	if errors.As(err, &rej) {
		writeError(w, rej.Status, string(rej.Reason), rej.Error())
		return
	}

	if errors.Is(err, coupon.ErrNoSuchCoupon) {
		writeError(w, http.StatusNotFound, "coupon_not_found", "no such coupon")
		return
	}

	if errors.Is(err, checkout.ErrEmptyItems) {
		writeError(w, http.StatusBadRequest, "empty_items", err.Error())
		return
	}

	var iq *checkout.InvalidQuantityError
	if errors.As(err, &iq) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_quantity", iq.Error())
		return
	}

	writeInternalError(w, r, err)
}
