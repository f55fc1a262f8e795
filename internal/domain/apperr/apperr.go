// Package apperr defines the structured error kinds returned by the checkout core.
// Callers map kinds to transport codes and messages; the core never returns bare strings.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidReference    Kind = "invalid_reference"
	KindEmptyCart           Kind = "empty_cart"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindInvalidState        Kind = "invalid_state"
	KindTimeout             Kind = "timeout"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindInvalid             Kind = "invalid"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

// Error is the generic carrier for a kind plus the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidReference    = &Error{Kind: KindInvalidReference}
	ErrEmptyCart           = &Error{Kind: KindEmptyCart}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable}
	ErrInvalid             = &Error{Kind: KindInvalid}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInternal            = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target of the same kind whose Op and Msg are either empty or equal,
// so the bare kind sentinels match every error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return (t.Op == "" || t.Op == e.Op) && (t.Msg == "" || t.Msg == e.Msg)
}

// New builds an error of the given kind for op.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// StockShortage reports that a product cannot cover the requested quantity.
type StockShortage struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockShortage) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockShortage) Is(target error) bool { return target == ErrInsufficientStock }

// BalanceShortfall reports that an account cannot cover the required amount.
type BalanceShortfall struct {
	UserID    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

// Shortfall is how much is missing to cover Required.
func (e *BalanceShortfall) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func (e *BalanceShortfall) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: required %s, available %s, shortfall %s",
		e.UserID, e.Required.StringFixed(2), e.Available.StringFixed(2), e.Shortfall().StringFixed(2))
}

func (e *BalanceShortfall) Is(target error) bool { return target == ErrInsufficientBalance }

// KindOf resolves the kind carried by err. Deadline expiry is reported as a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var stock *StockShortage
	if errors.As(err, &stock) {
		return KindInsufficientStock
	}
	var balance *BalanceShortfall
	if errors.As(err, &balance) {
		return KindInsufficientBalance
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Status renders a kind as the upper-case status text used in use case logs and spans.
func Status(err error) string {
	return strings.ToUpper(string(KindOf(err)))
}
