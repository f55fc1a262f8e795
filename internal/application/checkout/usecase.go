package checkout

import (
	"context"
	"errors"
	"sort"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService     = "checkout-service"
	useCaseCreateOrder  = "checkout.create_order"
	useCaseListShipping = "checkout.list_shipping_options"
	useCaseListPayment  = "checkout.list_payment_methods"
)

type CreateOrderInput struct {
	UserID            string
	ShippingOptionID  string
	PaymentMethodID   string
	ShippingAddressID string
	IdempotencyKey    string
}

type CreateOrderResult struct {
	OrderID     string
	Status      domorder.Status
	TotalAmount decimal.Decimal
	Items       []domorder.Item
	Replayed    bool
}

// CreateOrderUseCase turns the user's cart into a Pending order inside one
// unit of work. It never touches stock or balance.
type CreateOrderUseCase struct {
	uow         application.UnitOfWork
	idGenerator application.IDGenerator
	inst        application.Instrument
}

func NewCreateOrderUseCase(uow application.UnitOfWork, idGen application.IDGenerator, tel observability.Observability) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		uow:         uow,
		idGenerator: idGen,
		inst:        application.NewInstrument(tel, checkoutService, useCaseCreateOrder),
	}
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.inst.Start(ctx, "CreateOrder",
		attribute.String("order.user_id", cmd.UserID),
		attribute.String("order.shipping_option_id", cmd.ShippingOptionID),
		attribute.String("order.payment_method_id", cmd.PaymentMethodID),
		attribute.Bool("order.idempotent", cmd.IdempotencyKey != ""),
	)
	defer func() { run.End(err) }()

	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	var result *CreateOrderResult
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		result, err = uc.create(ctx, tx, cmd)
		return err
	})
	if errors.Is(err, domorder.ErrConflict) && cmd.IdempotencyKey != "" {
		// A concurrent request with the same key won the insert.
		err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
			existing, err := tx.Orders().FindByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			result = replayed(existing)
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		run.SetStatus("IDEMPOTENT_REPLAY")
		run.Span().AddEvent("order.idempotent_replay",
			trace.WithAttributes(attribute.String("order.id", result.OrderID)),
		)
	} else {
		run.Span().AddEvent("order.created",
			trace.WithAttributes(attribute.String("order.id", result.OrderID)),
		)
	}
	run.Span().SetAttributes(
		attribute.String("order.id", result.OrderID),
		attribute.String("order.status", string(result.Status)),
	)
	run.Annotate(
		observability.F("order_id", result.OrderID),
		observability.F("total_amount", result.TotalAmount.String()),
		observability.F("items", len(result.Items)),
	)
	return result, nil
}

func (uc *CreateOrderUseCase) create(ctx context.Context, tx application.Tx, cmd CreateOrderInput) (*CreateOrderResult, error) {
	if cmd.IdempotencyKey != "" {
		existing, err := tx.Orders().FindByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case err == nil:
			return replayed(existing), nil
		case errors.Is(err, domorder.ErrNotFound):
		default:
			return nil, err
		}
	}

	lines, err := tx.Carts().Lines(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domcart.ErrEmpty
	}

	sel := reference.Selection{
		ShippingOptionID:  cmd.ShippingOptionID,
		PaymentMethodID:   cmd.PaymentMethodID,
		ShippingAddressID: cmd.ShippingAddressID,
	}
	if err := validateReferences(ctx, tx.References(), cmd.UserID, sel); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	sort.Strings(ids)
	products, err := tx.Inventory().Lock(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domorder.Item, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, dominv.ErrNotFound
		}
		if !p.CanCover(l.Quantity) {
			return nil, p.Shortage(l.Quantity)
		}
		items = append(items, domorder.Item{
			ProductID: p.ID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}

	entity, err := domorder.New(uc.idGenerator.NewID(), cmd.UserID, cmd.IdempotencyKey, sel, items)
	if err != nil {
		return nil, err
	}
	if err := tx.Orders().Insert(ctx, entity); err != nil {
		return nil, err
	}
	if err := tx.Carts().Clear(ctx, cmd.UserID); err != nil {
		return nil, err
	}
	if err := tx.Outbox().Record(ctx, domorder.NewOrderCreatedEvent(entity)); err != nil {
		return nil, err
	}

	return &CreateOrderResult{
		OrderID:     entity.ID,
		Status:      entity.Status,
		TotalAmount: entity.TotalAmount,
		Items:       entity.Items,
	}, nil
}

// validateReferences checks existence of every reference and ownership of the address.
func validateReferences(ctx context.Context, refs reference.Repository, userID string, sel reference.Selection) error {
	if _, err := refs.ShippingOption(ctx, sel.ShippingOptionID); err != nil {
		return err
	}
	if _, err := refs.PaymentMethod(ctx, sel.PaymentMethodID); err != nil {
		return err
	}
	addr, err := refs.Address(ctx, sel.ShippingAddressID)
	if err != nil {
		return err
	}
	if addr.UserID != userID {
		return reference.ErrForeignAddress
	}
	return nil
}

func replayed(o *domorder.Order) *CreateOrderResult {
	return &CreateOrderResult{
		OrderID:     o.ID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       o.Items,
		Replayed:    true,
	}
}

// validateCreate only checks the caller. Blank reference ids are left to the
// lookups in validateReferences, which run after the empty-cart check.
func validateCreate(cmd CreateOrderInput) error {
	if cmd.UserID == "" {
		return apperr.New(apperr.KindInvalid, "checkout", "user id is required")
	}
	return nil
}
