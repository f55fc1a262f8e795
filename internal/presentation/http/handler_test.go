package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appaccount "github.com/Zhima-Mochi/minishop-checkout/internal/application/account"
	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type stubHealth struct{ err error }

func (h stubHealth) Ping(context.Context) error { return h.err }

func newRouter(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	st := memory.NewStore()
	require.NoError(t, st.Seed(context.Background(), seed.Demo()))
	ids := id.NewUUIDGenerator()
	uc := UseCases{
		AddToCart:           appcart.NewAddItemUseCase(st, nil),
		UpdateCartItem:      appcart.NewSetItemQuantityUseCase(st, nil),
		ListCart:            appcart.NewListItemsUseCase(st, nil),
		CreateOrder:         checkout.NewCreateOrderUseCase(st, ids, nil),
		PayOrder:            payment.NewPayOrderUseCase(st, ids, nil),
		ListOrders:          apporder.NewListOrdersUseCase(st, nil),
		GetOrderDetail:      apporder.NewGetOrderDetailUseCase(st, nil),
		CancelOrder:         apporder.NewCancelOrderUseCase(st, nil),
		ListAllOrders:       apporder.NewListAllOrdersUseCase(st, nil),
		AdvanceStatus:       apporder.NewAdvanceStatusUseCase(st, nil),
		Deposit:             appaccount.NewDepositUseCase(st, ids, nil),
		GetAccount:          appaccount.NewGetAccountUseCase(st, nil),
		ListTransactions:    appaccount.NewListTransactionsUseCase(st, nil),
		ListShippingOptions: checkout.NewListShippingOptionsUseCase(st, nil),
		ListPaymentMethods:  checkout.NewListPaymentMethodsUseCase(st, nil),
	}
	return NewHandler(uc, nil, append([]Option{WithHealthChecker(st)}, opts...)...).Router()
}

type call struct {
	method  string
	path    string
	user    string
	role    string
	body    any
	headers map[string]string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	switch b := c.body.(type) {
	case nil:
	case string:
		body.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(b))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	if c.user != "" {
		req.Header.Set(headerUserID, c.user)
	}
	if c.role != "" {
		req.Header.Set(headerUserRole, c.role)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCheckoutAndSettlementOverHTTP(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, call{method: http.MethodPost, path: "/cart/items", user: "u-bob", body: cartLineRequest{ProductID: "p-kettle", Quantity: 1}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, call{method: http.MethodGet, path: "/cart", user: "u-bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[cartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Gooseneck Kettle", cart.Items[0].ProductName)
	assert.True(t, cart.Total.Equal(decimal.NewFromInt(450000)))

	create := call{
		method:  http.MethodPost,
		path:    "/orders",
		user:    "u-bob",
		body:    createOrderRequest{ShippingOptionID: "ship-exp", PaymentMethodID: "pay-balance", ShippingAddressID: "addr-bob"},
		headers: map[string]string{headerIdempotencyKey: "checkout-1"},
	}
	rec = do(t, h, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createOrderResponse](t, rec)
	assert.Equal(t, "Pending", string(created.Status))
	assert.True(t, created.TotalAmount.Equal(decimal.NewFromInt(450000)))

	rec = do(t, h, create)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(headerReplayed))
	assert.Equal(t, created.OrderID, decode[createOrderResponse](t, rec).OrderID)

	pay := call{method: http.MethodPost, path: "/orders/" + created.OrderID + "/pay", user: "u-bob"}
	rec = do(t, h, pay)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	shortfall := decode[errorBody](t, rec)
	assert.Equal(t, "insufficient_balance", shortfall.Kind)
	assert.Equal(t, "400000.00", shortfall.Details["shortfall"])

	rec = do(t, h, call{method: http.MethodPost, path: "/admin/users/u-bob/deposit", user: "u-admin", role: "Admin", body: map[string]any{"amount": "400000"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, pay)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[payOrderResponse](t, rec)
	assert.Equal(t, "Paid", string(paid.Status))
	assert.True(t, paid.AmountPaid.Equal(decimal.NewFromInt(450000)))

	rec = do(t, h, pay)
	assert.Equal(t, http.StatusConflict, rec.Code, "a paid order cannot be paid again")

	rec = do(t, h, call{method: http.MethodGet, path: "/orders/" + created.OrderID, user: "u-bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[orderDetailResponse](t, rec)
	assert.Equal(t, "Express", detail.ShippingOption)
	assert.True(t, detail.GrandTotal.Equal(decimal.NewFromInt(495000)))

	rec = do(t, h, call{method: http.MethodGet, path: "/me", user: "u-bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[accountResponse](t, rec).Balance.Equal(decimal.Zero))

	rec = do(t, h, call{method: http.MethodGet, path: "/me/transactions", user: "u-bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transactionResponse](t, rec), 2)

	rec = do(t, h, call{method: http.MethodPut, path: "/admin/orders/" + created.OrderID + "/status", user: "u-admin", role: "Admin", body: advanceStatusRequest{Status: "Shipping"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[transitionResponse](t, rec)
	assert.Equal(t, "Paid", string(moved.From))
	assert.Equal(t, "Shipping", string(moved.Status))

	rec = do(t, h, call{method: http.MethodGet, path: "/admin/orders", user: "u-admin", role: "Admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]orderSummaryResponse](t, rec)
	require.Len(t, all, 1)
	assert.Equal(t, "bob", all[0].Username)
}

func TestErrorResponses(t *testing.T) {
	h := newRouter(t)

	tests := []struct {
		name   string
		call   call
		status int
		kind   string
	}{
		{"missing identity", call{method: http.MethodGet, path: "/cart"}, http.StatusUnauthorized, kindUnauthenticated},
		{"customer on admin route", call{method: http.MethodGet, path: "/admin/orders", user: "u-alice", role: "Customer"}, http.StatusForbidden, kindForbidden},
		{"unknown field", call{method: http.MethodPost, path: "/cart/items", user: "u-alice", body: `{"product_id":"p-oolong","qty":1}`}, http.StatusBadRequest, kindBadRequest},
		{"empty body", call{method: http.MethodPost, path: "/orders", user: "u-alice"}, http.StatusBadRequest, kindBadRequest},
		{"out of stock", call{method: http.MethodPost, path: "/cart/items", user: "u-alice", body: cartLineRequest{ProductID: "p-cup", Quantity: 1}}, http.StatusConflict, string(apperr.KindInsufficientStock)},
		{"empty cart", call{method: http.MethodPost, path: "/orders", user: "u-alice", body: createOrderRequest{ShippingOptionID: "ship-std", PaymentMethodID: "pay-balance", ShippingAddressID: "addr-alice"}}, http.StatusUnprocessableEntity, string(apperr.KindEmptyCart)},
		{"unknown order", call{method: http.MethodGet, path: "/orders/nope", user: "u-alice"}, http.StatusNotFound, string(apperr.KindNotFound)},
		{"admin paying through status", call{method: http.MethodPut, path: "/admin/orders/nope/status", user: "u-admin", role: "Admin", body: advanceStatusRequest{Status: "Paid"}}, http.StatusConflict, string(apperr.KindInvalidState)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.call)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[errorBody](t, rec).Kind)
		})
	}
}

func TestStockShortageDetails(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, call{method: http.MethodPost, path: "/cart/items", user: "u-alice", body: cartLineRequest{ProductID: "p-kettle", Quantity: 3}})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "p-kettle", body.Details["product_id"])
	assert.EqualValues(t, 3, body.Details["requested"])
	assert.EqualValues(t, 2, body.Details["available"])
}

func TestRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		limiter := &stubLimiter{allow: false}
		h := newRouter(t, WithRateLimiter(limiter))

		rec := do(t, h, call{method: http.MethodPost, path: "/cart/items", user: "u-alice", body: cartLineRequest{ProductID: "p-oolong", Quantity: 1}})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, kindRateLimited, decode[errorBody](t, rec).Kind)
		assert.Equal(t, []string{"u-alice"}, limiter.keys)

		rec = do(t, h, call{method: http.MethodGet, path: "/cart", user: "u-alice"})
		assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
	})

	t.Run("limiter failure lets requests through", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis down")}
		h := newRouter(t, WithRateLimiter(limiter))

		rec := do(t, h, call{method: http.MethodPost, path: "/cart/items", body: cartLineRequest{ProductID: "p-oolong", Quantity: 1}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, []string{"192.0.2.1"}, limiter.keys, "anonymous callers are keyed by address")
	})
}

func TestHealthAndRequestID(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, call{method: http.MethodGet, path: "/health", headers: map[string]string{headerRequestID: "req-42"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))

	rec = do(t, h, call{method: http.MethodGet, path: "/shipping/options"})
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	opts := decode[[]shippingOptionResponse](t, rec)
	require.Len(t, opts, 2)
	assert.Equal(t, "Giao Hang Nhanh", opts[0].CompanyName)

	down := newRouter(t, WithHealthChecker(stubHealth{err: apperr.ErrStoreUnavailable}))
	rec = do(t, down, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	rec := do(t, newRouter(t, WithMetricsHandler(metrics)), call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = do(t, newRouter(t), call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindNotFound:            http.StatusNotFound,
		apperr.KindInvalidReference:    http.StatusUnprocessableEntity,
		apperr.KindEmptyCart:           http.StatusUnprocessableEntity,
		apperr.KindInsufficientStock:   http.StatusConflict,
		apperr.KindInsufficientBalance: http.StatusPaymentRequired,
		apperr.KindInvalidState:        http.StatusConflict,
		apperr.KindTimeout:             http.StatusGatewayTimeout,
		apperr.KindStoreUnavailable:    http.StatusServiceUnavailable,
		apperr.KindInvalid:             http.StatusBadRequest,
		apperr.KindConflict:            http.StatusConflict,
		apperr.KindInternal:            http.StatusInternalServerError,
		apperr.Kind("mystery"):         http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, StatusFor(kind), kind)
	}
}
