package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (c *capture) Publish(_ context.Context, e domoutbox.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capture) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	store  *memory.Store
	events *capture
	create *CreateOrderUseCase
	add    *appcart.AddItemUseCase
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	events := &capture{}
	st := memory.NewStore(memory.WithPublisher(events))
	require.NoError(t, st.Seed(context.Background(), seed.Demo()))
	return &fixture{
		store:  st,
		events: events,
		create: NewCreateOrderUseCase(st, id.NewSequence(ids...), nil),
		add:    appcart.NewAddItemUseCase(st, nil),
	}
}

func (f *fixture) fill(t *testing.T, userID string, lines map[string]int) {
	t.Helper()
	for productID, qty := range lines {
		_, err := f.add.Execute(context.Background(), appcart.LineInput{UserID: userID, ProductID: productID, Quantity: qty})
		require.NoError(t, err)
	}
}

func aliceOrder(key string) CreateOrderInput {
	return CreateOrderInput{
		UserID:            "u-alice",
		ShippingOptionID:  "ship-std",
		PaymentMethodID:   "pay-balance",
		ShippingAddressID: "addr-alice",
		IdempotencyKey:    key,
	}
}

func TestCreateOrder_SnapshotsCartIntoPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "o-1")
	f.fill(t, "u-alice", map[string]int{"p-oolong": 2, "p-matcha": 1})

	res, err := f.create.Execute(ctx, aliceOrder(""))
	require.NoError(t, err)

	assert.Equal(t, "o-1", res.OrderID)
	assert.Equal(t, domorder.StatusPending, res.Status)
	assert.False(t, res.Replayed)
	assert.True(t, res.TotalAmount.Equal(decimal.NewFromInt(2*120000+95000)), "shipping is not part of the total")
	assert.Len(t, res.Items, 2)

	lines, err := f.store.ListLines(ctx, "u-alice")
	require.NoError(t, err)
	assert.Empty(t, lines, "cart is cleared")

	p, err := f.store.Product(ctx, "p-oolong")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Stock, "stock moves only on payment")

	acct, err := f.store.Get(ctx, "u-alice")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(500000)))

	detail, err := f.store.Detail(ctx, "o-1", "u-alice")
	require.NoError(t, err)
	assert.True(t, detail.GrandTotal().Equal(res.TotalAmount.Add(decimal.NewFromInt(20000))))

	assert.Equal(t, []string{domorder.EventCreated}, f.events.names())
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.create.Execute(context.Background(), aliceOrder(""))
	assert.Equal(t, apperr.KindEmptyCart, apperr.KindOf(err))
	assert.Empty(t, f.events.names())
}

func TestCreateOrder_InvalidReferencesKeepCart(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		want   error
	}{
		{"unknown shipping option", func(in *CreateOrderInput) { in.ShippingOptionID = "ship-none" }, reference.ErrUnknownShippingOption},
		{"unknown payment method", func(in *CreateOrderInput) { in.PaymentMethodID = "pay-none" }, reference.ErrUnknownPaymentMethod},
		{"unknown address", func(in *CreateOrderInput) { in.ShippingAddressID = "addr-none" }, reference.ErrUnknownAddress},
		{"address of another user", func(in *CreateOrderInput) { in.ShippingAddressID = "addr-bob" }, reference.ErrForeignAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.fill(t, "u-alice", map[string]int{"p-oolong": 1})

			in := aliceOrder("")
			tt.mutate(&in)
			_, err := f.create.Execute(ctx, in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindInvalidReference, apperr.KindOf(err))

			lines, err := f.store.ListLines(ctx, "u-alice")
			require.NoError(t, err)
			assert.Len(t, lines, 1)

			orders, err := f.store.ListByUser(ctx, "u-alice")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestCreateOrder_StockDroppedAfterAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fill(t, "u-alice", map[string]int{"p-matcha": 4})
	require.NoError(t, f.store.Seed(ctx, seed.Dataset{Products: []inventory.Product{
		{ID: "p-matcha", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Matcha", Price: decimal.NewFromInt(95000), Stock: 3},
	}}))

	_, err := f.create.Execute(ctx, aliceOrder(""))
	var shortage *apperr.StockShortage
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, apperr.StockShortage{ProductID: "p-matcha", Requested: 4, Available: 3}, *shortage)

	lines, err := f.store.ListLines(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, lines, 1, "a failed checkout keeps the cart")
}

func TestCreateOrder_OneShortLineRefusesWholeOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "o-1")
	f.fill(t, "u-alice", map[string]int{"p-oolong": 2, "p-matcha": 1})
	require.NoError(t, f.store.Seed(ctx, seed.Dataset{Products: []inventory.Product{
		{ID: "p-oolong", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Oolong Tea", Price: decimal.NewFromInt(120000), Stock: 5},
		{ID: "p-matcha", ShopID: "s-tea", ShopName: "Tea Shop", Name: "Matcha", Price: decimal.NewFromInt(95000), Stock: 0},
	}}))

	_, err := f.create.Execute(ctx, aliceOrder(""))
	var shortage *apperr.StockShortage
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, "p-matcha", shortage.ProductID)
	assert.Equal(t, 0, shortage.Available)

	orders, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders, "no order and no order items")

	lines, err := f.store.ListLines(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Empty(t, f.events.names())
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "o-1", "o-2")
	f.fill(t, "u-alice", map[string]int{"p-oolong": 1})

	first, err := f.create.Execute(ctx, aliceOrder("checkout-42"))
	require.NoError(t, err)

	// The cart is empty now; a replay must not report EmptyCart.
	second, err := f.create.Execute(ctx, aliceOrder("checkout-42"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))

	orders, err := f.store.ListByUser(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, []string{domorder.EventCreated}, f.events.names())
}

func TestCreateOrder_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fill(t, "u-alice", map[string]int{"p-oolong": 1})

	const n = 8
	results := make([]*CreateOrderResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.create.Execute(ctx, aliceOrder("same"))
		}()
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].OrderID, results[i].OrderID)
		if !results[i].Replayed {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.create.Execute(context.Background(), CreateOrderInput{})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestCreateOrder_EmptyCartReportedBeforeReferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"blank references", func(in *CreateOrderInput) { *in = CreateOrderInput{UserID: in.UserID} }},
		{"blank shipping option", func(in *CreateOrderInput) { in.ShippingOptionID = "" }},
		{"unknown shipping option", func(in *CreateOrderInput) { in.ShippingOptionID = "ship-none" }},
		{"unknown address", func(in *CreateOrderInput) { in.ShippingAddressID = "addr-none" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := aliceOrder("")
			tt.mutate(&in)
			_, err := f.create.Execute(context.Background(), in)
			assert.Equal(t, apperr.KindEmptyCart, apperr.KindOf(err))
		})
	}
}

func TestCreateOrder_BlankReferencesAreInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		want   error
	}{
		{"shipping option", func(in *CreateOrderInput) { in.ShippingOptionID = "" }, reference.ErrUnknownShippingOption},
		{"payment method", func(in *CreateOrderInput) { in.PaymentMethodID = "" }, reference.ErrUnknownPaymentMethod},
		{"address", func(in *CreateOrderInput) { in.ShippingAddressID = "" }, reference.ErrUnknownAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fill(t, "u-alice", map[string]int{"p-oolong": 1})
			in := aliceOrder("")
			tt.mutate(&in)
			_, err := f.create.Execute(context.Background(), in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindInvalidReference, apperr.KindOf(err))
		})
	}
}

func TestReferenceListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	options, err := NewListShippingOptionsUseCase(f.store, nil).Execute(ctx, struct{}{})
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "ship-std", options[0].ID)
	assert.Equal(t, "Giao Hang Nhanh", options[0].CompanyName)

	methods, err := NewListPaymentMethodsUseCase(f.store, nil).Execute(ctx, struct{}{})
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "pay-balance", methods[0].ID)
}
