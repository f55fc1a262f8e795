package cart

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService            = "cart-service"
	useCaseAddItem         = "cart.add_item"
	useCaseSetItemQuantity = "cart.set_item_quantity"
	useCaseListItems       = "cart.list_items"
)

var errUserRequired = apperr.New(apperr.KindInvalid, "cart", "user id is required")
var errProductRequired = apperr.New(apperr.KindInvalid, "cart", "product id is required")

type LineInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

type LineResult struct {
	ProductID string
	Quantity  int
	Removed   bool
}

// AddItemUseCase adds quantity to a cart line, creating it when absent. The
// combined quantity must fit the live stock.
type AddItemUseCase struct {
	uow  application.UnitOfWork
	inst application.Instrument
}

func NewAddItemUseCase(uow application.UnitOfWork, tel observability.Observability) *AddItemUseCase {
	return &AddItemUseCase{
		uow:  uow,
		inst: application.NewInstrument(tel, cartService, useCaseAddItem),
	}
}

func (uc *AddItemUseCase) Execute(ctx context.Context, cmd LineInput) (_ *LineResult, err error) {
	ctx, run := uc.inst.Start(ctx, "AddItem",
		attribute.String("cart.user_id", cmd.UserID),
		attribute.String("cart.product_id", cmd.ProductID),
		attribute.Int("cart.quantity", cmd.Quantity),
	)
	defer func() { run.End(err) }()

	if err := validateLine(cmd); err != nil {
		return nil, err
	}
	if cmd.Quantity < 1 {
		return nil, domcart.ErrInvalidQuantity
	}

	var result *LineResult
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		product, err := tx.Inventory().Get(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		current, err := tx.Carts().Quantity(ctx, cmd.UserID, cmd.ProductID)
		if err != nil {
			return err
		}
		next := current + cmd.Quantity
		if !product.CanCover(next) {
			return product.Shortage(next)
		}
		if err := tx.Carts().Upsert(ctx, cmd.UserID, cmd.ProductID, next); err != nil {
			return err
		}
		result = &LineResult{ProductID: cmd.ProductID, Quantity: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetItemQuantityUseCase overwrites the quantity of a line. Zero removes it.
type SetItemQuantityUseCase struct {
	uow  application.UnitOfWork
	inst application.Instrument
}

func NewSetItemQuantityUseCase(uow application.UnitOfWork, tel observability.Observability) *SetItemQuantityUseCase {
	return &SetItemQuantityUseCase{
		uow:  uow,
		inst: application.NewInstrument(tel, cartService, useCaseSetItemQuantity),
	}
}

func (uc *SetItemQuantityUseCase) Execute(ctx context.Context, cmd LineInput) (_ *LineResult, err error) {
	ctx, run := uc.inst.Start(ctx, "SetItemQuantity",
		attribute.String("cart.user_id", cmd.UserID),
		attribute.String("cart.product_id", cmd.ProductID),
		attribute.Int("cart.quantity", cmd.Quantity),
	)
	defer func() { run.End(err) }()

	if err := validateLine(cmd); err != nil {
		return nil, err
	}
	if cmd.Quantity < 0 {
		return nil, domcart.ErrNegativeQuantity
	}

	var result *LineResult
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		if cmd.Quantity == 0 {
			if err := tx.Carts().Remove(ctx, cmd.UserID, cmd.ProductID); err != nil {
				return err
			}
			result = &LineResult{ProductID: cmd.ProductID, Removed: true}
			return nil
		}
		product, err := tx.Inventory().Get(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if !product.CanCover(cmd.Quantity) {
			return product.Shortage(cmd.Quantity)
		}
		if err := tx.Carts().Upsert(ctx, cmd.UserID, cmd.ProductID, cmd.Quantity); err != nil {
			return err
		}
		result = &LineResult{ProductID: cmd.ProductID, Quantity: cmd.Quantity}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Removed {
		run.SetStatus("LINE_REMOVED")
	}
	return result, nil
}

type ListItemsInput struct {
	UserID string
}

type CartView struct {
	Lines []domcart.LineView
	Total decimal.Decimal
}

// ListItemsUseCase returns an unlocked snapshot of the cart. It never gates a mutation.
type ListItemsUseCase struct {
	reader domcart.Reader
	inst   application.Instrument
}

func NewListItemsUseCase(reader domcart.Reader, tel observability.Observability) *ListItemsUseCase {
	return &ListItemsUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, cartService, useCaseListItems),
	}
}

func (uc *ListItemsUseCase) Execute(ctx context.Context, cmd ListItemsInput) (_ *CartView, err error) {
	ctx, run := uc.inst.Start(ctx, "ListItems", attribute.String("cart.user_id", cmd.UserID))
	defer func() { run.End(err) }()

	if cmd.UserID == "" {
		return nil, errUserRequired
	}
	lines, err := uc.reader.ListLines(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	run.Annotate(observability.F("lines", len(lines)))
	return &CartView{Lines: lines, Total: domcart.Total(lines)}, nil
}

func validateLine(cmd LineInput) error {
	if cmd.UserID == "" {
		return errUserRequired
	}
	if cmd.ProductID == "" {
		return errProductRequired
	}
	return nil
}
