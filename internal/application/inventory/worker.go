package inventory

import (
	"context"
	"fmt"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	inventoryService = "inventory-worker"
	useCaseStockScan = "inventory.stock_scan"
	spanPrefix       = "UC."
)

// StockWatchWorker reacts to settled orders and warns when a purchased
// product falls to or below the low-stock threshold.
type StockWatchWorker struct {
	orders    domorder.Reader
	products  dominv.Reader
	threshold int
	tracer    observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewStockWatchWorker(orders domorder.Reader, products dominv.Reader, threshold int, tel observability.Observability) *StockWatchWorker {
	tel = observability.OrNop(tel)
	return &StockWatchWorker{
		orders:       orders,
		products:     products,
		threshold:    threshold,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *StockWatchWorker) Start(subscriber domoutbox.Subscriber, middlewares ...func(domoutbox.Handler) domoutbox.Handler) {
	if subscriber == nil || w.orders == nil || w.products == nil {
		return
	}
	h := domoutbox.Handler(w.handleOrderPaid)
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	subscriber.Subscribe(domorder.EventPaid, h)
}

// LowStock is one product at or below the threshold after a settlement.
type LowStock struct {
	ProductID string
	Name      string
	Stock     int
}

func (w *StockWatchWorker) handleOrderPaid(ctx context.Context, e domoutbox.Event) error {
	var evt domorder.OrderPaidEvent
	ok, err := apporder.DecodeEvent(e, &evt)
	if err != nil {
		w.observe("error", 0)
		return err
	}
	if !ok {
		w.observe("ignored", 0)
		return nil
	}
	_, err = w.Scan(ctx, evt.OrderID, evt.UserID)
	return err
}

// Scan checks the stock of every product in the order.
func (w *StockWatchWorker) Scan(ctx context.Context, orderID, userID string) (_ []LowStock, err error) {
	ctx, span := w.tracer.Start(ctx, spanPrefix+"StockScan",
		attribute.String("use_case", useCaseStockScan),
		attribute.String("order.id", orderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	var low []LowStock

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCaseStockScan),
		observability.F("order_id", orderID),
	)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("low_stock_products", len(low)),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	detail, err := w.orders.Detail(ctx, orderID, userID)
	if err != nil {
		outcome, status = "error", "ORDER_LOAD_FAILED"
		return nil, fmt.Errorf("inventory: load order: %w", err)
	}
	for _, it := range detail.Items {
		p, err := w.products.Product(ctx, it.ProductID)
		if err != nil {
			outcome, status = "error", "PRODUCT_LOAD_FAILED"
			return nil, fmt.Errorf("inventory: load product %s: %w", it.ProductID, err)
		}
		if p.Stock <= w.threshold {
			low = append(low, LowStock{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
			logger.Warn("product_low_stock",
				observability.F("product_id", p.ID),
				observability.F("product_name", p.Name),
				observability.F("stock", p.Stock),
				observability.F("threshold", w.threshold),
			)
		}
	}
	if len(low) > 0 {
		status = "LOW_STOCK"
	}
	return low, nil
}

func (w *StockWatchWorker) observe(outcome string, latencySeconds float64) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCaseStockScan),
		observability.L("outcome", outcome),
	)
	if latencySeconds > 0 {
		w.durHistogram.Observe(latencySeconds,
			observability.L("use_case", useCaseStockScan),
		)
	}
}
