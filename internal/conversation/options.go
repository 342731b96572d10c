package conversation

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for turn spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMeter sets the meter used for turn metrics
func WithMeter(meter metric.Meter) Option {
	return func(c *Controller) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// WithReplyTimeout bounds each backend call. Zero means no limit.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.replyTimeout = d
	}
}
