package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context in its stored form, so work that is persisted
// now and resumed later (outbox rows) joins the original trace.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

func CurrentTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Traceparent: carrier["traceparent"], Tracestate: carrier["tracestate"]}
}

func (tc TraceContext) IsZero() bool {
	return tc.Traceparent == "" && tc.Tracestate == ""
}

// Attach returns parent carrying the stored trace context as its remote span.
func (tc TraceContext) Attach(parent context.Context) context.Context {
	if tc.IsZero() {
		return parent
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Traceparent}
	if tc.Tracestate != "" {
		carrier["tracestate"] = tc.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
