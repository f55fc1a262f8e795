// Package seed holds reference and demo data loaded into a fresh store.
package seed

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/shopspring/decimal"
)

type Dataset struct {
	Accounts        []account.Account
	Products        []inventory.Product
	ShippingOptions []reference.ShippingOption
	PaymentMethods  []reference.PaymentMethod
	Addresses       []reference.Address
}

// Target is a store that can load a Dataset.
type Target interface {
	Seed(ctx context.Context, data Dataset) error
}

// Demo is a small shop with one admin, two customers and a handful of products.
func Demo() Dataset {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Dataset{
		Accounts: []account.Account{
			{UserID: "u-admin", Username: "admin", FullName: "Store Admin", Email: "admin@minishop.local", Role: account.RoleAdmin, Balance: decimal.Zero, CreatedAt: created},
			{UserID: "u-alice", Username: "alice", FullName: "Alice Nguyen", Email: "alice@minishop.local", Role: account.RoleCustomer, Balance: decimal.NewFromInt(500000), CreatedAt: created},
			{UserID: "u-bob", Username: "bob", FullName: "Bob Tran", Email: "bob@minishop.local", Role: account.RoleCustomer, Balance: decimal.NewFromInt(50000), CreatedAt: created},
			{UserID: "u-seller", Username: "teashop", FullName: "Tea Shop Owner", Email: "seller@minishop.local", Role: account.RoleSeller, Balance: decimal.Zero, CreatedAt: created},
		},
		Products: []inventory.Product{
			{ID: "p-oolong", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Oolong Tea", Description: "High mountain oolong, 150g", Price: decimal.NewFromInt(120000), Stock: 20},
			{ID: "p-matcha", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Matcha", Description: "Ceremonial grade, 30g", Price: decimal.NewFromInt(95000), Stock: 5},
			{ID: "p-kettle", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Gooseneck Kettle", Description: "Stainless steel, 1L", Price: decimal.NewFromInt(450000), Stock: 2},
			{ID: "p-cup", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Tasting Cup", Description: "Porcelain, 60ml", Price: decimal.NewFromInt(10000), Stock: 0},
		},
		ShippingOptions: []reference.ShippingOption{
			{ID: "ship-std", Name: "Standard", CompanyName: "Giao Hang Nhanh", Cost: decimal.NewFromInt(20000)},
			{ID: "ship-exp", Name: "Express", CompanyName: "Viettel Post", Cost: decimal.NewFromInt(45000)},
		},
		PaymentMethods: []reference.PaymentMethod{
			{ID: "pay-balance", Name: "Account balance"},
			{ID: "pay-cod", Name: "Cash on delivery"},
		},
		Addresses: []reference.Address{
			{ID: "addr-alice", UserID: "u-alice", Street: "12 Nguyen Hue", Ward: "Ben Nghe", District: "District 1", City: "Ho Chi Minh City"},
			{ID: "addr-bob", UserID: "u-bob", Street: "5 Trang Tien", Ward: "Trang Tien", District: "Hoan Kiem", City: "Ha Noi"},
		},
	}
}
