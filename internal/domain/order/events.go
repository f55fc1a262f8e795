package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCreated       = "order.created"
	EventPaid          = "order.paid"
	EventStatusChanged = "order.status_changed"
)

// OrderCreatedEvent is emitted in the same unit of work that inserts the order.
type OrderCreatedEvent struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []Item          `json:"items"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string     { return EventCreated }
func (e OrderCreatedEvent) AggregateID() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       append([]Item(nil), o.Items...),
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderPaidEvent is emitted when settlement commits.
type OrderPaidEvent struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (OrderPaidEvent) EventName() string     { return EventPaid }
func (e OrderPaidEvent) AggregateID() string { return e.OrderID }

func NewOrderPaidEvent(o *Order, transactionID string) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Amount:        o.TotalAmount,
		TransactionID: transactionID,
		OccurredAt:    time.Now().UTC(),
	}
}

// OrderStatusChangedEvent covers every transition other than settlement.
type OrderStatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	ChangedBy  string    `json:"changed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string     { return EventStatusChanged }
func (e OrderStatusChangedEvent) AggregateID() string { return e.OrderID }

func NewOrderStatusChangedEvent(orderID string, from, to Status, changedBy string) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    orderID,
		From:       from,
		To:         to,
		ChangedBy:  changedBy,
		OccurredAt: time.Now().UTC(),
	}
}
