package backend

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"TherapyBuddy/internal/session"
)

func backendAttr(name string) attribute.KeyValue {
	return attribute.String("backend", name)
}

type instrumented struct {
	next     Backend
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// Instrumented wraps b so every Generate call gets a span, a latency sample
// and, on failure, an error count
func Instrumented(b Backend, tracer trace.Tracer, meter metric.Meter) Backend {
	duration, _ := meter.Float64Histogram(
		"backend.generate.duration",
		metric.WithDescription("Backend reply latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	errCount, _ := meter.Int64Counter(
		"backend.generate.errors",
		metric.WithDescription("Failed backend replies"),
	)
	return &instrumented{
		next:     b,
		tracer:   tracer,
		duration: duration,
		errors:   errCount,
	}
}

func (i *instrumented) Name() string {
	return i.next.Name()
}

func (i *instrumented) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	ctx, span := i.tracer.Start(ctx, i.next.Name()+"_generate",
		trace.WithAttributes(
			backendAttr(i.next.Name()),
			attribute.String("session_id", snap.SessionID),
			attribute.Int("messages", len(snap.Messages)),
		))
	defer span.End()

	start := time.Now()
	msg, err := i.next.Generate(ctx, snap)
	if i.duration != nil {
		i.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(backendAttr(i.next.Name())))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if i.errors != nil {
			i.errors.Add(ctx, 1, metric.WithAttributes(backendAttr(i.next.Name())))
		}
		return msg, err
	}
	span.SetAttributes(attribute.Int("reply_length", len(msg.Text)))
	return msg, nil
}
