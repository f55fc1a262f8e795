package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository is the transaction-scoped balance ledger.
type Repository interface {
	// Lock reads and locks the account for the rest of the transaction.
	Lock(ctx context.Context, userID string) (*Account, error)
	// TryDebitBalance subtracts amount only if the balance covers it,
	// returning *apperr.BalanceShortfall otherwise.
	TryDebitBalance(ctx context.Context, userID string, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	AppendTransaction(ctx context.Context, entry Transaction) error
}

// Reader serves unlocked display reads.
type Reader interface {
	Get(ctx context.Context, userID string) (*Account, error)
	// Transactions lists the history of userID, newest first.
	Transactions(ctx context.Context, userID string) ([]Transaction, error)
}
