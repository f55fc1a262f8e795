// Package reference holds the foreign records an order points at. Their
// lifecycle belongs to other collaborators; checkout only checks existence
// and, for addresses, ownership.
package reference

import (
	"strings"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownShippingOption = &apperr.Error{Kind: apperr.KindInvalidReference, Op: "reference", Msg: "shipping option does not exist"}
	ErrUnknownPaymentMethod  = &apperr.Error{Kind: apperr.KindInvalidReference, Op: "reference", Msg: "payment method does not exist"}
	ErrUnknownAddress        = &apperr.Error{Kind: apperr.KindInvalidReference, Op: "reference", Msg: "shipping address does not exist"}
	ErrForeignAddress        = &apperr.Error{Kind: apperr.KindInvalidReference, Op: "reference", Msg: "shipping address belongs to another user"}
)

type ShippingOption struct {
	ID          string
	Name        string
	CompanyName string
	Cost        decimal.Decimal
}

type PaymentMethod struct {
	ID   string
	Name string
}

type Address struct {
	ID       string
	UserID   string
	Street   string
	Ward     string
	District string
	City     string
}

// Full renders the address on one line.
func (a Address) Full() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.Ward, a.District, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Selection is the set of references chosen at checkout.
type Selection struct {
	ShippingOptionID  string
	PaymentMethodID   string
	ShippingAddressID string
}
