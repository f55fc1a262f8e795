package payment

import (
	"context"
	"fmt"
	"sort"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService   = "payment-service"
	useCasePayOrder  = "payment.pay_order"
	ledgerStock      = "stock"
	ledgerBalance    = "balance"
	ledgerApplied    = "applied"
	ledgerRejected   = "rejected"
	ledgerFailed     = "error"
	paymentOperation = "payment"
)

type PayOrderInput struct {
	OrderID string
	UserID  string
}

type PayOrderResult struct {
	OrderID       string
	Status        domorder.Status
	AmountPaid    decimal.Decimal
	TransactionID string
}

// PayOrderUseCase settles a Pending order: debit the balance, decrement stock
// for every item, append a Payment history entry and move the order to Paid,
// all in one unit of work.
type PayOrderUseCase struct {
	uow         application.UnitOfWork
	idGenerator application.IDGenerator
	inst        application.Instrument
	ledger      observability.Counter // ledger_mutations_total{ledger,outcome}
}

func NewPayOrderUseCase(uow application.UnitOfWork, idGen application.IDGenerator, tel observability.Observability) *PayOrderUseCase {
	tel = observability.OrNop(tel)
	return &PayOrderUseCase{
		uow:         uow,
		idGenerator: idGen,
		inst:        application.NewInstrument(tel, paymentService, useCasePayOrder),
		ledger:      tel.Metrics().Counter(observability.MLedgerMutations),
	}
}

func (uc *PayOrderUseCase) Execute(ctx context.Context, cmd PayOrderInput) (_ *PayOrderResult, err error) {
	ctx, run := uc.inst.Start(ctx, "PayOrder",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.user_id", cmd.UserID),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID == "" {
		return nil, apperr.New(apperr.KindInvalid, paymentOperation, "order id is required")
	}
	if cmd.UserID == "" {
		return nil, apperr.New(apperr.KindInvalid, paymentOperation, "user id is required")
	}

	var result *PayOrderResult
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		result, err = uc.settle(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}

	run.Span().SetAttributes(attribute.String("order.status", string(result.Status)))
	run.Span().AddEvent("order.paid",
		trace.WithAttributes(attribute.String("transaction.id", result.TransactionID)),
	)
	run.Annotate(
		observability.F("order_id", result.OrderID),
		observability.F("amount", result.AmountPaid.String()),
		observability.F("transaction_id", result.TransactionID),
	)
	return result, nil
}

func (uc *PayOrderUseCase) settle(ctx context.Context, tx application.Tx, cmd PayOrderInput) (*PayOrderResult, error) {
	o, err := tx.Orders().Lock(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if o.Status != domorder.StatusPending {
		return nil, apperr.New(apperr.KindInvalidState, paymentOperation,
			"order %s is %s, only Pending orders can be paid", o.ID, o.Status)
	}

	acct, err := tx.Accounts().Lock(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if !acct.Covers(o.TotalAmount) {
		uc.countLedger(ledgerBalance, ledgerRejected)
		return nil, acct.Shortfall(o.TotalAmount)
	}

	items := append([]domorder.Item(nil), o.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := tx.Inventory().Lock(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, ok := products[it.ProductID]; !ok {
			return nil, dominv.ErrNotFound
		}
		if err := tx.Inventory().TryDecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			uc.countLedger(ledgerStock, ledgerOutcome(err))
			return nil, err
		}
		uc.countLedger(ledgerStock, ledgerApplied)
	}

	if o.TotalAmount.IsPositive() {
		if err := tx.Accounts().TryDebitBalance(ctx, cmd.UserID, o.TotalAmount); err != nil {
			uc.countLedger(ledgerBalance, ledgerOutcome(err))
			return nil, err
		}
		uc.countLedger(ledgerBalance, ledgerApplied)
	}

	// A free order moves no money, so it leaves no history entry.
	transactionID := ""
	if o.TotalAmount.IsPositive() {
		entry := account.NewTransaction(uc.idGenerator.NewID(), cmd.UserID, o.TotalAmount,
			account.TransactionPayment, fmt.Sprintf("Payment for order %s", o.ID))
		if err := tx.Accounts().AppendTransaction(ctx, entry); err != nil {
			return nil, err
		}
		transactionID = entry.ID
	}

	updated, err := tx.Orders().UpdateStatus(ctx, o.ID, domorder.StatusPending, domorder.StatusPaid)
	if err != nil {
		return nil, err
	}
	if updated == nil || updated.Status != domorder.StatusPaid {
		return nil, apperr.New(apperr.KindInternal, paymentOperation,
			"order %s not observed as Paid after settlement", o.ID)
	}

	if err := tx.Outbox().Record(ctx, domorder.NewOrderPaidEvent(updated, transactionID)); err != nil {
		return nil, err
	}

	return &PayOrderResult{
		OrderID:       updated.ID,
		Status:        updated.Status,
		AmountPaid:    updated.TotalAmount,
		TransactionID: transactionID,
	}, nil
}

// countLedger runs inside the unit of work, so an applied mutation may still
// be rolled back by a later step.
func (uc *PayOrderUseCase) countLedger(ledger, outcome string) {
	uc.ledger.Add(1,
		observability.L("ledger", ledger),
		observability.L("outcome", outcome),
	)
}

func ledgerOutcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindInsufficientStock, apperr.KindInsufficientBalance:
		return ledgerRejected
	default:
		return ledgerFailed
	}
}
