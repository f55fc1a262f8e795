package httppresentation

import (
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/shopspring/decimal"
)

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Removed   bool   `json:"removed,omitempty"`
}

type cartItemResponse struct {
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name"`
	ProductDescription string          `json:"product_description"`
	ShopName           string          `json:"shop_name"`
	Quantity           int             `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	Stock              int             `json:"stock"`
	Subtotal           decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

func toCartResponse(v *appcart.CartView) cartResponse {
	out := cartResponse{Items: make([]cartItemResponse, 0, len(v.Lines)), Total: v.Total}
	for _, l := range v.Lines {
		out.Items = append(out.Items, cartItemResponse{
			ProductID:          l.ProductID,
			ProductName:        l.ProductName,
			ProductDescription: l.ProductDescription,
			ShopName:           l.ShopName,
			Quantity:           l.Quantity,
			Price:              l.Price,
			Stock:              l.Stock,
			Subtotal:           l.Subtotal(),
		})
	}
	return out
}

type createOrderRequest struct {
	ShippingOptionID  string `json:"shipping_option_id"`
	PaymentMethodID   string `json:"payment_method_id"`
	ShippingAddressID string `json:"shipping_address_id"`
}

type orderItemResponse struct {
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name,omitempty"`
	ProductDescription string          `json:"product_description,omitempty"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Subtotal           decimal.Decimal `json:"subtotal"`
}

type createOrderResponse struct {
	OrderID     string              `json:"order_id"`
	Status      order.Status        `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Items       []orderItemResponse `json:"items"`
	Replayed    bool                `json:"replayed,omitempty"`
}

func toOrderItems(items []order.Item) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
		})
	}
	return out
}

type payOrderResponse struct {
	OrderID       string          `json:"order_id"`
	Status        order.Status    `json:"status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

type transitionResponse struct {
	OrderID string       `json:"order_id"`
	From    order.Status `json:"from"`
	Status  order.Status `json:"status"`
}

type orderSummaryResponse struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Username        string          `json:"username,omitempty"`
	OrderDate       time.Time       `json:"order_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	Status          order.Status    `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingOption  string          `json:"shipping_option"`
	ShippingAddress string          `json:"shipping_address"`
}

type orderDetailResponse struct {
	orderSummaryResponse
	Items []orderItemResponse `json:"items"`
}

func toSummary(s order.Summary) orderSummaryResponse {
	return orderSummaryResponse{
		OrderID:         s.OrderID,
		UserID:          s.UserID,
		Username:        s.Username,
		OrderDate:       s.OrderDate,
		TotalAmount:     s.TotalAmount,
		ShippingCost:    s.ShippingCost,
		GrandTotal:      s.GrandTotal(),
		Status:          s.Status,
		PaymentMethod:   s.PaymentMethod,
		ShippingOption:  s.ShippingOption,
		ShippingAddress: s.ShippingAddress,
	}
}

func toSummaries(list []order.Summary) []orderSummaryResponse {
	out := make([]orderSummaryResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSummary(s))
	}
	return out
}

func toDetail(d *order.Detail) orderDetailResponse {
	out := orderDetailResponse{orderSummaryResponse: toSummary(d.Summary), Items: make([]orderItemResponse, 0, len(d.Items))}
	for _, it := range d.Items {
		out.Items = append(out.Items, orderItemResponse{
			ProductID:          it.ProductID,
			ProductName:        it.ProductName,
			ProductDescription: it.ProductDescription,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			Subtotal:           it.Subtotal(),
		})
	}
	return out
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type depositResponse struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	TransactionID string          `json:"transaction_id"`
}

type accountResponse struct {
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	FullName  string          `json:"full_name"`
	Email     string          `json:"email"`
	Role      account.Role    `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAccount(a *account.Account) accountResponse {
	return accountResponse{
		UserID:    a.UserID,
		Username:  a.Username,
		FullName:  a.FullName,
		Email:     a.Email,
		Role:      a.Role,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
	}
}

type transactionResponse struct {
	ID          string                  `json:"id"`
	Amount      decimal.Decimal         `json:"amount"`
	Type        account.TransactionType `json:"type"`
	Description string                  `json:"description"`
	CreatedAt   time.Time               `json:"created_at"`
}

func toTransactions(list []account.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		out = append(out, transactionResponse{
			ID:          t.ID,
			Amount:      t.Amount,
			Type:        t.Type,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	return out
}

type shippingOptionResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	CompanyName string          `json:"company_name"`
	Cost        decimal.Decimal `json:"cost"`
}

func toShippingOptions(list []reference.ShippingOption) []shippingOptionResponse {
	out := make([]shippingOptionResponse, 0, len(list))
	for _, o := range list {
		out = append(out, shippingOptionResponse{ID: o.ID, Name: o.Name, CompanyName: o.CompanyName, Cost: o.Cost})
	}
	return out
}

type paymentMethodResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toPaymentMethods(list []reference.PaymentMethod) []paymentMethodResponse {
	out := make([]paymentMethodResponse, 0, len(list))
	for _, m := range list {
		out = append(out, paymentMethodResponse{ID: m.ID, Name: m.Name})
	}
	return out
}
