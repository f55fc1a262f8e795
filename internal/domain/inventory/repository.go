package inventory

import "context"

// Repository is the transaction-scoped inventory ledger.
type Repository interface {
	// Get reads a product without locking it.
	Get(ctx context.Context, productID string) (*Product, error)
	// Lock reads and locks the given products for the rest of the transaction.
	// Missing ids are absent from the result.
	Lock(ctx context.Context, productIDs []string) (map[string]*Product, error)
	// TryDecrementStock subtracts quantity only if enough stock remains,
	// returning *apperr.StockShortage otherwise.
	TryDecrementStock(ctx context.Context, productID string, quantity int) error
}

// Reader serves unlocked product reads for display and monitoring.
type Reader interface {
	Product(ctx context.Context, productID string) (*Product, error)
}
