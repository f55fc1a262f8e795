package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService         = "order-service"
	useCaseListOrders    = "order.list"
	useCaseListAll       = "order.list_all"
	useCaseOrderDetail   = "order.detail"
	useCaseCancelOrder   = "order.cancel"
	useCaseAdvanceStatus = "order.advance_status"
)

var (
	ErrNotFound = domain.ErrNotFound
	// ErrSettlementOnly rejects administrative moves to Paid; only settlement pays an order.
	ErrSettlementOnly = apperr.New(apperr.KindInvalidState, "order", "orders become Paid only through settlement")
)

type ListOrdersInput struct {
	UserID string
}

// ListOrdersUseCase lists the caller's orders, newest first.
type ListOrdersUseCase struct {
	reader domain.Reader
	inst   application.Instrument
}

func NewListOrdersUseCase(reader domain.Reader, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, orderService, useCaseListOrders),
	}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []domain.Summary, err error) {
	ctx, run := uc.inst.Start(ctx, "ListOrders", attribute.String("order.user_id", cmd.UserID))
	defer func() { run.End(err) }()

	if cmd.UserID == "" {
		return nil, apperr.New(apperr.KindInvalid, "order", "user id is required")
	}
	out, err := uc.reader.ListByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	run.Annotate(observability.F("orders", len(out)))
	return out, nil
}

// ListAllOrdersUseCase is the administrative listing across users.
type ListAllOrdersUseCase struct {
	reader domain.Reader
	inst   application.Instrument
}

func NewListAllOrdersUseCase(reader domain.Reader, tel observability.Observability) *ListAllOrdersUseCase {
	return &ListAllOrdersUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, orderService, useCaseListAll),
	}
}

func (uc *ListAllOrdersUseCase) Execute(ctx context.Context, _ struct{}) (_ []domain.Summary, err error) {
	ctx, run := uc.inst.Start(ctx, "ListAllOrders")
	defer func() { run.End(err) }()

	out, err := uc.reader.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	run.Annotate(observability.F("orders", len(out)))
	return out, nil
}

type GetOrderDetailInput struct {
	OrderID string
	UserID  string
}

// GetOrderDetailUseCase returns one of the caller's orders with its items.
type GetOrderDetailUseCase struct {
	reader domain.Reader
	inst   application.Instrument
}

func NewGetOrderDetailUseCase(reader domain.Reader, tel observability.Observability) *GetOrderDetailUseCase {
	return &GetOrderDetailUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, orderService, useCaseOrderDetail),
	}
}

func (uc *GetOrderDetailUseCase) Execute(ctx context.Context, cmd GetOrderDetailInput) (_ *domain.Detail, err error) {
	ctx, run := uc.inst.Start(ctx, "GetOrderDetail",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.user_id", cmd.UserID),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID == "" || cmd.UserID == "" {
		return nil, apperr.New(apperr.KindInvalid, "order", "order id and user id are required")
	}
	return uc.reader.Detail(ctx, cmd.OrderID, cmd.UserID)
}

type CancelOrderInput struct {
	OrderID string
	UserID  string
}

type TransitionResult struct {
	OrderID string
	From    domain.Status
	Status  domain.Status
}

// CancelOrderUseCase lets an owner cancel a Pending order.
type CancelOrderUseCase struct {
	uow  application.UnitOfWork
	inst application.Instrument
}

func NewCancelOrderUseCase(uow application.UnitOfWork, tel observability.Observability) *CancelOrderUseCase {
	return &CancelOrderUseCase{
		uow:  uow,
		inst: application.NewInstrument(tel, orderService, useCaseCancelOrder),
	}
}

func (uc *CancelOrderUseCase) Execute(ctx context.Context, cmd CancelOrderInput) (_ *TransitionResult, err error) {
	ctx, run := uc.inst.Start(ctx, "CancelOrder",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.user_id", cmd.UserID),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID == "" || cmd.UserID == "" {
		return nil, apperr.New(apperr.KindInvalid, "order", "order id and user id are required")
	}
	return transition(ctx, uc.uow, cmd.OrderID, cmd.UserID, domain.StatusCancelled, cmd.UserID)
}

type AdvanceStatusInput struct {
	OrderID string
	Status  string
	ActorID string
}

// AdvanceStatusUseCase is the administrative status override. The lifecycle
// still validates the move and no stock or balance changes accompany it.
type AdvanceStatusUseCase struct {
	uow  application.UnitOfWork
	inst application.Instrument
}

func NewAdvanceStatusUseCase(uow application.UnitOfWork, tel observability.Observability) *AdvanceStatusUseCase {
	return &AdvanceStatusUseCase{
		uow:  uow,
		inst: application.NewInstrument(tel, orderService, useCaseAdvanceStatus),
	}
}

func (uc *AdvanceStatusUseCase) Execute(ctx context.Context, cmd AdvanceStatusInput) (_ *TransitionResult, err error) {
	ctx, run := uc.inst.Start(ctx, "AdvanceStatus",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.next_status", cmd.Status),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID == "" {
		return nil, apperr.New(apperr.KindInvalid, "order", "order id is required")
	}
	next, err := domain.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	if next == domain.StatusPaid {
		return nil, ErrSettlementOnly
	}
	return transition(ctx, uc.uow, cmd.OrderID, "", next, cmd.ActorID)
}

// transition applies a lifecycle move as a conditional write on the current status.
func transition(ctx context.Context, uow application.UnitOfWork, orderID, ownerID string, next domain.Status, actor string) (*TransitionResult, error) {
	var result *TransitionResult
	err := uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		o, err := tx.Orders().Lock(ctx, orderID, ownerID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.TransitionTo(next); err != nil {
			return err
		}
		updated, err := tx.Orders().UpdateStatus(ctx, o.ID, from, next)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Record(ctx, domain.NewOrderStatusChangedEvent(o.ID, from, updated.Status, actor)); err != nil {
			return err
		}
		result = &TransitionResult{OrderID: o.ID, From: from, Status: updated.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
