package inventory

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = &apperr.Error{Kind: apperr.KindNotFound, Op: "inventory", Msg: "product not found"}
	ErrInvalidQuantity = &apperr.Error{Kind: apperr.KindInvalid, Op: "inventory", Msg: "quantity must be greater than zero"}
	// ErrInsufficientStock matches every *apperr.StockShortage.
	ErrInsufficientStock = apperr.ErrInsufficientStock
)

// Product is the stock-bearing catalog entry. Price and Stock are owned by the
// catalog collaborator; the checkout core only decrements Stock on settlement.
type Product struct {
	ID          string
	ShopID      string
	ShopName    string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	UpdatedAt   time.Time
}

// CanCover reports whether quantity units are available right now.
func (p *Product) CanCover(quantity int) bool {
	return quantity <= p.Stock
}

// Shortage builds the typed error for a request of quantity units.
func (p *Product) Shortage(quantity int) *apperr.StockShortage {
	return &apperr.StockShortage{ProductID: p.ID, Requested: quantity, Available: p.Stock}
}

// Deduct is the check-and-set used by store adapters that hold the product exclusively.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !p.CanCover(quantity) {
		return p.Shortage(quantity)
	}
	p.Stock -= quantity
	p.touch()
	return nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
