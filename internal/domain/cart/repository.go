package cart

import "context"

// Repository is the transaction-scoped cart store. Lines form a set keyed by product.
type Repository interface {
	// Lines returns the user's lines in insertion order, locked for the transaction.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Quantity returns the current quantity of a line, or 0 when absent.
	Quantity(ctx context.Context, userID, productID string) (int, error)
	// Upsert sets the quantity of a line, creating it when absent.
	Upsert(ctx context.Context, userID, productID string, quantity int) error
	// Remove deletes a line; removing an absent line is not an error.
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Reader serves the display projection.
type Reader interface {
	ListLines(ctx context.Context, userID string) ([]LineView, error)
}
