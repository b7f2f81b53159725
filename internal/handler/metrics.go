package handler

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithMeterProvider records request metrics with the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Handler) {
		meter := mp.Meter("coupon-engine/handler")
		h.metrics.ordersPlaced, _ = meter.Int64Counter("orders_placed_total",
			metric.WithDescription("Orders successfully placed"))
		h.metrics.couponsApplied, _ = meter.Int64Counter("coupons_applied_total",
			metric.WithDescription("Coupons applied to placed orders"))
		h.metrics.validations, _ = meter.Int64Counter("coupon_validations_total",
			metric.WithDescription("Coupon validation requests by outcome"))
	}
}

// WithTracerProvider traces coupon and order operations with the given
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		h.tracer = tp.Tracer("coupon-engine/handler")
	}
}

type handlerMetrics struct {
	ordersPlaced   metric.Int64Counter
	couponsApplied metric.Int64Counter
	validations    metric.Int64Counter
}

func noopTelemetry(h *Handler) {
	WithMeterProvider(metricnoop.NewMeterProvider())(h)
	h.tracer = tracenoop.NewTracerProvider().Tracer("coupon-engine/handler")
}

func outcomeAttr(valid bool) attribute.KeyValue {
	if valid {
		return attribute.String("outcome", "valid")
	}
	return attribute.String("outcome", "rejected")
}
