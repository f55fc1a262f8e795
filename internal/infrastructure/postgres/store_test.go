package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, opts...), mock
}

var productColumns = []string{"id", "shop_id", "shop_name", "name", "description", "price", "stock", "updated_at"}

func TestStore_DoCommitsStockDecrement(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock = stock -").
		WithArgs("p-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Inventory().TryDecrementStock(ctx, "p-1", 2)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DoRollsBackOnStockShortage(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock = stock -").
		WithArgs("p-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM products p LEFT JOIN shops").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("p-1", "s-1", "Shop", "Tea", "", "1000", 1, time.Now()))
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Inventory().TryDecrementStock(ctx, "p-1", 2)
	})

	var shortage *apperr.StockShortage
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, "p-1", shortage.ProductID)
	assert.Equal(t, 2, shortage.Requested)
	assert.Equal(t, 1, shortage.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DoRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t, WithMaxRetries(2))
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("o-1", "Pending", "Paid", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("o-1", "Pending", "Paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "idempotency_key", "shipping_option_id",
			"payment_method_id", "shipping_address_id", "total_amount", "status", "order_date", "updated_at"}).
			AddRow("o-1", "u-1", "", "ship-std", "pay-balance", "addr-1", "100000", "Paid", now, now))
	mock.ExpectQuery("FROM order_items WHERE order_id").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "unit_price"}).
			AddRow("p-1", 2, "50000"))
	mock.ExpectCommit()

	var updated *order.Order
	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		var err error
		updated, err = tx.Orders().UpdateStatus(ctx, "o-1", order.StatusPending, order.StatusPaid)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, updated.Status)
	require.Len(t, updated.Items, 1)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(100000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DoGivesUpAfterRetries(t *testing.T) {
	store, mock := newMockStore(t, WithMaxRetries(0))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		_, err := tx.Orders().UpdateStatus(ctx, "o-1", order.StatusPending, order.StatusPaid)
		return err
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DoClassifiesConnectionFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006"})

	err := store.Do(context.Background(), func(context.Context, application.Tx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))
}

func TestStore_DoReportsDeadlineAsTimeout(t *testing.T) {
	store, mock := newMockStore(t, WithTxTimeout(30*time.Millisecond))

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, _ application.Tx) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.True(t, errors.Is(err, apperr.ErrTimeout))
}

func TestOrderRepository_InsertDuplicateIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	o := &order.Order{ID: "o-1", UserID: "u-1", IdempotencyKey: "k", Status: order.StatusPending,
		TotalAmount: decimal.NewFromInt(10), Items: []order.Item{{ProductID: "p-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}}}
	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, o)
	})
	assert.True(t, errors.Is(err, order.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_InsertWritesItemsInLineOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("o-1", 1, "p-b", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("o-1", 2, "p-a", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o := &order.Order{ID: "o-1", UserID: "u-1", Status: order.StatusPending, Items: []order.Item{
		{ProductID: "p-b", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: "p-a", Quantity: 3, UnitPrice: decimal.NewFromInt(5)},
	}}
	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, o)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatusRejectsStaleFrom(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Paid"))
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		_, err := tx.Orders().UpdateStatus(ctx, "o-1", order.StatusPending, order.StatusPaid)
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
	assert.True(t, errors.Is(err, order.ErrInvalidStateTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_LockSortsIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF p").
		WithArgs(pq.Array([]string{"p-a", "p-b"})).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("p-a", "", "", "A", "", "10", 3, time.Now()).
			AddRow("p-b", "", "", "B", "", "20", 0, time.Now()))
	mock.ExpectCommit()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		locked, err := tx.Inventory().Lock(ctx, []string{"p-b", "p-a"})
		if err != nil {
			return err
		}
		assert.Len(t, locked, 2)
		assert.Equal(t, 3, locked["p-a"].Stock)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_TryDebitBalanceShortfall(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET balance = balance -").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "role", "balance", "created_at"}).
			AddRow("u-1", "alice", "Alice", "a@x", "Customer", "50000", time.Now()))
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Accounts().TryDebitBalance(ctx, "u-1", decimal.NewFromInt(100000))
	})

	var shortfall *apperr.BalanceShortfall
	require.True(t, errors.As(err, &shortfall))
	assert.True(t, shortfall.Shortfall().Equal(decimal.NewFromInt(50000)))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_AppendTransactionRejectsZeroAmount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Accounts().AppendTransaction(ctx,
			account.NewTransaction("t-1", "u-1", decimal.Zero, account.TransactionPayment, "free order"))
	})

	require.ErrorIs(t, err, account.ErrInvalidAmount)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTx_RecordWritesOutboxRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(order.EventPaid, "o-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Outbox().Record(ctx, order.NewOrderPaidEvent(&order.Order{ID: "o-1", UserID: "u-1", TotalAmount: decimal.NewFromInt(10)}, "t-1"))
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchPendingAndMarkSent(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM outbox WHERE sent_at IS NULL").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "aggregate_id", "payload", "created_at"}).
			AddRow(int64(1), "order.created", "o-1", []byte(`{"order_id":"o-1"}`), now).
			AddRow(int64(2), "order.paid", "o-1", []byte(`{"order_id":"o-1"}`), now))
	mock.ExpectExec("UPDATE outbox SET sent_at").
		WithArgs(pq.Array([]int64{1, 2}), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	msgs, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "order.paid", msgs[1].EventName())
	assert.Equal(t, "o-1", msgs[1].AggregateID())

	require.NoError(t, store.MarkSent(context.Background(), []int64{msgs[0].ID, msgs[1].ID}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransactionsUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u-ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.Transactions(context.Background(), "u-ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DetailJoinsReferences(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM orders o").
		WithArgs("o-1", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "username", "order_date", "total_amount", "status",
			"payment_method", "shipping_option", "shipping_cost", "street", "ward", "district", "city"}).
			AddRow("o-1", "u-1", "alice", now, "100000", "Pending", "Account balance", "Standard", "20000",
				"12 Nguyen Hue", "Ben Nghe", "District 1", "Ho Chi Minh City"))
	mock.ExpectQuery("FROM order_items oi").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "description", "quantity", "unit_price"}).
			AddRow("p-1", "Oolong Tea", "150g", 2, "50000"))

	d, err := store.Detail(context.Background(), "o-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "12 Nguyen Hue, Ben Nghe, District 1, Ho Chi Minh City", d.ShippingAddress)
	assert.True(t, d.GrandTotal().Equal(decimal.NewFromInt(120000)))
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Oolong Tea", d.Items[0].ProductName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"deadline", context.DeadlineExceeded, apperr.KindTimeout},
		{"connection class", &pq.Error{Code: "08001"}, apperr.KindStoreUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, apperr.KindStoreUnavailable},
		{"query canceled", &pq.Error{Code: "57014"}, apperr.KindTimeout},
		{"serialization", &pq.Error{Code: "40001"}, apperr.KindConflict},
		{"domain error untouched", order.ErrNotFound, apperr.KindNotFound},
		{"other", errors.New("boom"), apperr.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, apperr.KindOf(classify(tc.err)))
		})
	}
}
