package account

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionPayment TransactionType = "Payment"
	TransactionDeposit TransactionType = "Deposit"
)

// Transaction is an immutable balance history entry, written once per
// balance-affecting event. Amount is always positive; Type gives the direction.
type Transaction struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

func NewTransaction(id, userID string, amount decimal.Decimal, typ TransactionType, description string) Transaction {
	return Transaction{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
