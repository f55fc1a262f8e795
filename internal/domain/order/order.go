package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = &apperr.Error{Kind: apperr.KindNotFound, Op: "order", Msg: "order not found"}
	ErrConflict               = &apperr.Error{Kind: apperr.KindConflict, Op: "order", Msg: "order already exists"}
	ErrNoItems                = &apperr.Error{Kind: apperr.KindInvalid, Op: "order", Msg: "order must contain at least one item"}
	ErrInvalidQuantity        = &apperr.Error{Kind: apperr.KindInvalid, Op: "order", Msg: "quantity must be greater than zero"}
	ErrInvalidPrice           = &apperr.Error{Kind: apperr.KindInvalid, Op: "order", Msg: "unit price must be zero or greater"}
	ErrDuplicateItem          = &apperr.Error{Kind: apperr.KindInvalid, Op: "order", Msg: "product listed twice"}
	ErrInvalidStateTransition = &apperr.Error{Kind: apperr.KindInvalidState, Op: "order", Msg: "invalid status transition"}
	ErrUnknownStatus          = &apperr.Error{Kind: apperr.KindInvalid, Op: "order", Msg: "unknown status"}
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusShipping  Status = "Shipping"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus validates a status coming from outside the core.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusShipping, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Item is the purchase-time snapshot of one line.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is immutable once created except for Status.
type Order struct {
	ID                string
	UserID            string
	IdempotencyKey    string
	ShippingOptionID  string
	PaymentMethodID   string
	ShippingAddressID string
	Items             []Item
	TotalAmount       decimal.Decimal
	Status            Status
	OrderDate         time.Time
	UpdatedAt         time.Time
}

// New materializes a Pending order. TotalAmount is the sum of item subtotals;
// shipping is not part of it.
func New(id, userID, idempotencyKey string, sel reference.Selection, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	seen := make(map[string]struct{}, len(items))
	snapshot := make([]Item, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, ErrDuplicateItem
		}
		seen[it.ProductID] = struct{}{}
		snapshot = append(snapshot, it)
		total = total.Add(it.Subtotal())
	}

	now := time.Now().UTC()
	return &Order{
		ID:                id,
		UserID:            userID,
		IdempotencyKey:    idempotencyKey,
		ShippingOptionID:  sel.ShippingOptionID,
		PaymentMethodID:   sel.PaymentMethodID,
		ShippingAddressID: sel.ShippingAddressID,
		Items:             snapshot,
		TotalAmount:       total,
		Status:            StatusPending,
		OrderDate:         now,
		UpdatedAt:         now,
	}, nil
}

// ItemsTotal recomputes the sum of item subtotals.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (o *Order) Pay() error      { return o.apply(OrderState.OnPaid) }
func (o *Order) Ship() error     { return o.apply(OrderState.OnShipped) }
func (o *Order) Complete() error { return o.apply(OrderState.OnCompleted) }
func (o *Order) Cancel() error   { return o.apply(OrderState.OnCancelled) }

// TransitionTo moves the order to next when the lifecycle allows it.
func (o *Order) TransitionTo(next Status) error {
	switch next {
	case StatusPaid:
		return o.Pay()
	case StatusShipping:
		return o.Ship()
	case StatusCompleted:
		return o.Complete()
	case StatusCancelled:
		return o.Cancel()
	case StatusPending:
		return ErrInvalidStateTransition
	}
	return ErrUnknownStatus
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

func (o *Order) apply(event func(OrderState) (OrderState, error)) error {
	st, err := stateFor(o.Status)
	if err != nil {
		return err
	}
	next, err := event(st)
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
