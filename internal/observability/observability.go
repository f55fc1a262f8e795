package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceFields returns trace_id/span_id fields for the span carried by ctx, or
// nothing when the context has no valid span.
func TraceFields(ctx context.Context) []Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{
		F("trace_id", sc.TraceID().String()),
		F("span_id", sc.SpanID().String()),
	}
}

type bundle struct {
	tracer  Tracer
	logger  Logger
	metrics Metrics
}

func (b bundle) Tracer() Tracer   { return b.tracer }
func (b bundle) Logger() Logger   { return b.logger }
func (b bundle) Metrics() Metrics { return b.metrics }

// Nop returns an Observability that records nothing.
func Nop() Observability {
	return bundle{tracer: NopTracer(), logger: NopLogger(), metrics: NopMetrics()}
}

// OrNop guards constructors against a nil Observability.
func OrNop(o Observability) Observability {
	if o == nil {
		return Nop()
	}
	return o
}
