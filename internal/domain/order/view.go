package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the list projection of an order joined with its reference data.
type Summary struct {
	OrderID         string
	UserID          string
	Username        string
	OrderDate       time.Time
	TotalAmount     decimal.Decimal
	Status          Status
	PaymentMethod   string
	ShippingOption  string
	ShippingCost    decimal.Decimal
	ShippingAddress string
}

// GrandTotal adds shipping to the item subtotal for display.
func (s Summary) GrandTotal() decimal.Decimal {
	return s.TotalAmount.Add(s.ShippingCost)
}

type ItemView struct {
	ProductID          string
	ProductName        string
	ProductDescription string
	Quantity           int
	UnitPrice          decimal.Decimal
}

func (v ItemView) Subtotal() decimal.Decimal {
	return v.UnitPrice.Mul(decimal.NewFromInt(int64(v.Quantity)))
}

type Detail struct {
	Summary
	Items []ItemView
}
