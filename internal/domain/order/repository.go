package order

import "context"

// Repository is the transaction-scoped write side. Implementations are only
// reachable through an application.Tx.
type Repository interface {
	// Insert persists header, items and the idempotency key (when set).
	Insert(ctx context.Context, o *Order) error
	// Lock returns the order with its items and holds it for the rest of the
	// unit of work. An empty userID matches any owner.
	Lock(ctx context.Context, orderID, userID string) (*Order, error)
	// FindByIdempotencyKey returns ErrNotFound when no order carries the key.
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// UpdateStatus writes to only while the stored status still equals from and
	// returns the order as stored after the write. A status that moved on
	// yields ErrInvalidStateTransition.
	UpdateStatus(ctx context.Context, orderID string, from, to Status) (*Order, error)
}

// Reader serves the unlocked display projections.
type Reader interface {
	ListByUser(ctx context.Context, userID string) ([]Summary, error)
	ListAll(ctx context.Context) ([]Summary, error)
	Detail(ctx context.Context, orderID, userID string) (*Detail, error)
}
