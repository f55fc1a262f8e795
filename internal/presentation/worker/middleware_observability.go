package workerpresentation

import (
	"context"
	"fmt"
	"strconv"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects an event-scoped logger for background handlers.
// Fields: event_id (the outbox id when relayed, generated otherwise), event,
// aggregate_id, the caller's low-cardinality attrs, and trace_id/span_id
// when the context carries a valid span.
func WithEventContext(ctx context.Context, base observability.Logger, e domoutbox.Event, attrs map[string]string) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, 5+len(attrs))
	fields = append(fields,
		observability.F("event_id", eventID(e)),
		observability.F("event", e.EventName()),
		observability.F("aggregate_id", e.AggregateID()),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	for k, v := range attrs {
		if v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}
	return logctx.With(ctx, base.With(fields...))
}

// Middleware wraps outbox handlers with the event-scoped logger. A panicking
// handler is logged and reported as an error so the bus keeps dispatching.
func Middleware(base observability.Logger, worker string) func(domoutbox.Handler) domoutbox.Handler {
	attrs := map[string]string{"worker": worker}
	return func(next domoutbox.Handler) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) (err error) {
			ctx = WithEventContext(ctx, base, e, attrs)
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("worker %s: panic handling %s: %v", worker, e.EventName(), p)
					logctx.FromOr(ctx, base).Error("worker_panic", observability.F("error", err.Error()))
				}
			}()
			return next(ctx, e)
		}
	}
}

func eventID(e domoutbox.Event) string {
	switch m := e.(type) {
	case domoutbox.Message:
		if m.ID > 0 {
			return strconv.FormatInt(m.ID, 10)
		}
	case *domoutbox.Message:
		if m != nil && m.ID > 0 {
			return strconv.FormatInt(m.ID, 10)
		}
	}
	return uuid.NewString()
}
