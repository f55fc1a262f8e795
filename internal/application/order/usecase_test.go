package order

import (
	"context"
	"testing"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memory.Store
	add    *appcart.AddItemUseCase
	create *checkout.CreateOrderUseCase
	pay    *payment.PayOrderUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	require.NoError(t, st.Seed(context.Background(), seed.Demo()))
	ids := id.NewUUIDGenerator()
	return &fixture{
		store:  st,
		add:    appcart.NewAddItemUseCase(st, nil),
		create: checkout.NewCreateOrderUseCase(st, ids, nil),
		pay:    payment.NewPayOrderUseCase(st, ids, nil),
	}
}

func (f *fixture) place(t *testing.T, userID, addressID, productID string, qty int) string {
	t.Helper()
	ctx := context.Background()
	_, err := f.add.Execute(ctx, appcart.LineInput{UserID: userID, ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	res, err := f.create.Execute(ctx, checkout.CreateOrderInput{
		UserID:            userID,
		ShippingOptionID:  "ship-exp",
		PaymentMethodID:   "pay-balance",
		ShippingAddressID: addressID,
	})
	require.NoError(t, err)
	return res.OrderID
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cancel := NewCancelOrderUseCase(f.store, nil)

	pending := f.place(t, "u-alice", "addr-alice", "p-oolong", 1)
	_, err := cancel.Execute(ctx, CancelOrderInput{OrderID: pending, UserID: "u-bob"})
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := cancel.Execute(ctx, CancelOrderInput{OrderID: pending, UserID: "u-alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.From)
	assert.Equal(t, domain.StatusCancelled, res.Status)

	_, err = cancel.Execute(ctx, CancelOrderInput{OrderID: pending, UserID: "u-alice"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "terminal orders stay put")

	paid := f.place(t, "u-alice", "addr-alice", "p-oolong", 1)
	_, err = f.pay.Execute(ctx, payment.PayOrderInput{OrderID: paid, UserID: "u-alice"})
	require.NoError(t, err)
	_, err = cancel.Execute(ctx, CancelOrderInput{OrderID: paid, UserID: "u-alice"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	p, err := f.store.Product(ctx, "p-oolong")
	require.NoError(t, err)
	assert.Equal(t, 19, p.Stock, "cancelling never touches stock")
}

func TestAdvanceStatus_WalksLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	advance := NewAdvanceStatusUseCase(f.store, nil)

	orderID := f.place(t, "u-alice", "addr-alice", "p-matcha", 1)

	_, err := advance.Execute(ctx, AdvanceStatusInput{OrderID: orderID, Status: "Shipping", ActorID: "u-admin"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition, "Pending cannot ship")

	_, err = advance.Execute(ctx, AdvanceStatusInput{OrderID: orderID, Status: "Paid", ActorID: "u-admin"})
	assert.ErrorIs(t, err, ErrSettlementOnly)

	_, err = advance.Execute(ctx, AdvanceStatusInput{OrderID: orderID, Status: "Lost", ActorID: "u-admin"})
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	_, err = f.pay.Execute(ctx, payment.PayOrderInput{OrderID: orderID, UserID: "u-alice"})
	require.NoError(t, err)

	for _, next := range []domain.Status{domain.StatusShipping, domain.StatusCompleted} {
		res, err := advance.Execute(ctx, AdvanceStatusInput{OrderID: orderID, Status: string(next), ActorID: "u-admin"})
		require.NoError(t, err)
		assert.Equal(t, next, res.Status)
	}

	_, err = advance.Execute(ctx, AdvanceStatusInput{OrderID: orderID, Status: "Cancelled", ActorID: "u-admin"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = advance.Execute(ctx, AdvanceStatusInput{OrderID: "o-missing", Status: "Shipping"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.place(t, "u-alice", "addr-alice", "p-oolong", 2)
	time.Sleep(2 * time.Millisecond)
	second := f.place(t, "u-alice", "addr-alice", "p-matcha", 1)
	bobs := f.place(t, "u-bob", "addr-bob", "p-oolong", 1)

	mine, err := NewListOrdersUseCase(f.store, nil).Execute(ctx, ListOrdersInput{UserID: "u-alice"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second, mine[0].OrderID, "newest first")
	assert.Equal(t, first, mine[1].OrderID)
	assert.Equal(t, "Express", mine[0].ShippingOption)
	assert.Equal(t, "Account balance", mine[0].PaymentMethod)
	assert.Equal(t, "12 Nguyen Hue, Ben Nghe, District 1, Ho Chi Minh City", mine[0].ShippingAddress)

	all, err := NewListAllOrdersUseCase(f.store, nil).Execute(ctx, struct{}{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, bobs, all[0].OrderID)
	assert.Equal(t, "bob", all[0].Username)

	detail := NewGetOrderDetailUseCase(f.store, nil)
	d, err := detail.Execute(ctx, GetOrderDetailInput{OrderID: first, UserID: "u-alice"})
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Oolong Tea", d.Items[0].ProductName)
	assert.Equal(t, 2, d.Items[0].Quantity)
	assert.True(t, d.GrandTotal().Equal(d.TotalAmount.Add(d.ShippingCost)))

	_, err = detail.Execute(ctx, GetOrderDetailInput{OrderID: first, UserID: "u-bob"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = detail.Execute(ctx, GetOrderDetailInput{OrderID: first})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}
