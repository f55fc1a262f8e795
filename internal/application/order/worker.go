package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	workerService = "order-worker"
	spanPrefix    = "UC."
)

// Worker consumes order lifecycle events after commit and keeps an audit
// trail of them in the logs and usecase metrics.
type Worker struct {
	reader domorder.Reader
	tracer observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(reader domorder.Reader, tel observability.Observability) *Worker {
	tel = observability.OrNop(tel)
	return &Worker{
		reader:       reader,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// Start registers the handlers, each wrapped by the given middlewares.
func (w *Worker) Start(subscriber domoutbox.Subscriber, middlewares ...func(domoutbox.Handler) domoutbox.Handler) {
	if subscriber == nil {
		return
	}
	wrap := func(h domoutbox.Handler) domoutbox.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
	subscriber.Subscribe(domorder.EventCreated, wrap(w.handleCreated))
	subscriber.Subscribe(domorder.EventPaid, wrap(w.handlePaid))
	subscriber.Subscribe(domorder.EventStatusChanged, wrap(w.handleStatusChanged))
}

func (w *Worker) handleCreated(ctx context.Context, e domoutbox.Event) error {
	var evt domorder.OrderCreatedEvent
	return w.run(ctx, "order.worker.created", "OrderCreated", e, &evt, func(ctx context.Context, logger observability.Logger) error {
		logger.Info("order_created_recorded",
			observability.F("order_id", evt.OrderID),
			observability.F("user_id", evt.UserID),
			observability.F("total_amount", evt.TotalAmount.String()),
			observability.F("items", len(evt.Items)),
		)
		return nil
	})
}

func (w *Worker) handlePaid(ctx context.Context, e domoutbox.Event) error {
	var evt domorder.OrderPaidEvent
	return w.run(ctx, "order.worker.paid", "OrderPaid", e, &evt, func(ctx context.Context, logger observability.Logger) error {
		fields := []observability.Field{
			observability.F("order_id", evt.OrderID),
			observability.F("user_id", evt.UserID),
			observability.F("amount", evt.Amount.String()),
			observability.F("transaction_id", evt.TransactionID),
		}
		if w.reader != nil {
			detail, err := w.reader.Detail(ctx, evt.OrderID, evt.UserID)
			if err != nil {
				return fmt.Errorf("worker: load order: %w", err)
			}
			fields = append(fields,
				observability.F("grand_total", detail.GrandTotal().String()),
				observability.F("shipping_option", detail.ShippingOption),
			)
		}
		logger.Info("order_paid_recorded", fields...)
		return nil
	})
}

func (w *Worker) handleStatusChanged(ctx context.Context, e domoutbox.Event) error {
	var evt domorder.OrderStatusChangedEvent
	return w.run(ctx, "order.worker.status_changed", "OrderStatusChanged", e, &evt, func(ctx context.Context, logger observability.Logger) error {
		logger.Info("order_status_recorded",
			observability.F("order_id", evt.OrderID),
			observability.F("from", string(evt.From)),
			observability.F("to", string(evt.To)),
			observability.F("changed_by", evt.ChangedBy),
		)
		return nil
	})
}

// run decodes e into dst and executes fn with span, log and RED metrics.
func (w *Worker) run(ctx context.Context, useCase, spanName string, e domoutbox.Event, dst any, fn func(context.Context, observability.Logger) error) (err error) {
	ctx, span := w.tracer.Start(ctx, spanPrefix+spanName,
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("aggregate.id", e.AggregateID()),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
	)
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)

		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	ok, derr := DecodeEvent(e, dst)
	if derr != nil {
		outcome, status = "error", "EVENT_DECODE_FAILED"
		return derr
	}
	if !ok {
		outcome, status = "ignored", "UNEXPECTED_EVENT"
		return nil
	}
	if err := fn(ctx, logger); err != nil {
		outcome, status = "error", "HANDLER_FAILED"
		return err
	}
	return nil
}

// DecodeEvent fills dst from either a typed event of the same type or a
// relayed outbox.Message carrying its JSON payload. It reports false when e
// carries neither.
func DecodeEvent(e domoutbox.Event, dst any) (bool, error) {
	switch v := e.(type) {
	case domoutbox.Message:
		if err := json.Unmarshal(v.Payload, dst); err != nil {
			return false, fmt.Errorf("worker: decode %s: %w", v.Name, err)
		}
		return true, nil
	case *domoutbox.Message:
		return DecodeEvent(*v, dst)
	}
	switch d := dst.(type) {
	case *domorder.OrderCreatedEvent:
		evt, ok := e.(domorder.OrderCreatedEvent)
		*d = evt
		return ok, nil
	case *domorder.OrderPaidEvent:
		evt, ok := e.(domorder.OrderPaidEvent)
		*d = evt
		return ok, nil
	case *domorder.OrderStatusChangedEvent:
		evt, ok := e.(domorder.OrderStatusChangedEvent)
		*d = evt
		return ok, nil
	}
	return false, nil
}

func (w *Worker) observe(useCase string, outcome string, latencySeconds float64) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
