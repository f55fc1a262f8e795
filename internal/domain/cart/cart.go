package cart

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity  = &apperr.Error{Kind: apperr.KindInvalid, Op: "cart", Msg: "quantity must be greater than zero"}
	ErrNegativeQuantity = &apperr.Error{Kind: apperr.KindInvalid, Op: "cart", Msg: "quantity must not be negative"}
	ErrEmpty            = &apperr.Error{Kind: apperr.KindEmptyCart, Op: "cart", Msg: "cart is empty"}
)

// Line is one (user, product) entry of the active cart.
type Line struct {
	UserID    string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// LineView is the display projection of a line joined with live product data.
type LineView struct {
	ProductID          string
	ProductName        string
	ProductDescription string
	ShopName           string
	Quantity           int
	Price              decimal.Decimal
	Stock              int
}

// Subtotal is price times quantity at the time of the read.
func (v LineView) Subtotal() decimal.Decimal {
	return v.Price.Mul(decimal.NewFromInt(int64(v.Quantity)))
}

// Total sums the subtotals of views.
func Total(views []LineView) decimal.Decimal {
	total := decimal.Zero
	for _, v := range views {
		total = total.Add(v.Subtotal())
	}
	return total
}
