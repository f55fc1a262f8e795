package account

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = &apperr.Error{Kind: apperr.KindNotFound, Op: "account", Msg: "user not found"}
	ErrInvalidAmount = &apperr.Error{Kind: apperr.KindInvalid, Op: "account", Msg: "amount must be greater than zero"}
	// ErrInsufficientBalance matches every *apperr.BalanceShortfall.
	ErrInsufficientBalance = apperr.ErrInsufficientBalance
)

type Role string

const (
	RoleCustomer Role = "Customer"
	RoleSeller   Role = "Seller"
	RoleAdmin    Role = "Admin"
)

// Account is a user together with its spendable balance.
type Account struct {
	UserID    string
	Username  string
	FullName  string
	Email     string
	Role      Role
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Covers reports whether the balance can pay amount without going negative.
func (a *Account) Covers(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Shortfall builds the typed error for a debit of amount.
func (a *Account) Shortfall(amount decimal.Decimal) *apperr.BalanceShortfall {
	return &apperr.BalanceShortfall{UserID: a.UserID, Required: amount, Available: a.Balance}
}

// Debit is the check-and-set used by store adapters that hold the account exclusively.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !a.Covers(amount) {
		return a.Shortfall(amount)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
