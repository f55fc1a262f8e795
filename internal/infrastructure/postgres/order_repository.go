package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

const selectOrder = `SELECT id, user_id, COALESCE(idempotency_key, ''), shipping_option_id, payment_method_id,
shipping_address_id, total_amount, status, order_date, updated_at FROM orders`

type orderRepository struct{ tx *sql.Tx }

func (r orderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, idempotency_key, shipping_option_id, payment_method_id,
		shipping_address_id, total_amount, status, order_date, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.IdempotencyKey, o.ShippingOptionID, o.PaymentMethodID,
		o.ShippingAddressID, o.TotalAmount, string(o.Status), o.OrderDate, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	for i, it := range o.Items {
		_, err := r.tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (r orderRepository) Lock(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	return r.load(ctx, selectOrder+` WHERE id = $1 AND ($2 = '' OR user_id = $2) FOR UPDATE`, orderID, userID)
}

func (r orderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.load(ctx, selectOrder+` WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

func (r orderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) (*domain.Order, error) {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		orderID, string(from), string(to), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}
	if !ok {
		var current domain.Status
		err := r.tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read order status: %w", err)
		}
		return nil, &apperr.Error{
			Kind: apperr.KindInvalidState,
			Op:   "order",
			Msg:  fmt.Sprintf("order %s is %s, expected %s", orderID, current, from),
			Err:  domain.ErrInvalidStateTransition,
		}
	}
	return r.load(ctx, selectOrder+` WHERE id = $1`, orderID)
}

func (r orderRepository) load(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var o domain.Order
	err := r.tx.QueryRowContext(ctx, query, args...).Scan(
		&o.ID, &o.UserID, &o.IdempotencyKey, &o.ShippingOptionID, &o.PaymentMethodID,
		&o.ShippingAddressID, &o.TotalAmount, &o.Status, &o.OrderDate, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}

	rows, err := r.tx.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY line_no`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

const selectSummary = `SELECT o.id, o.user_id, COALESCE(u.username, ''), o.order_date, o.total_amount, o.status,
COALESCE(pm.name, ''), COALESCE(so.name, ''), COALESCE(so.cost, 0),
COALESCE(a.street, ''), COALESCE(a.ward, ''), COALESCE(a.district, ''), COALESCE(a.city, '')
FROM orders o
LEFT JOIN users u ON u.id = o.user_id
LEFT JOIN payment_methods pm ON pm.id = o.payment_method_id
LEFT JOIN shipping_options so ON so.id = o.shipping_option_id
LEFT JOIN addresses a ON a.id = o.shipping_address_id`

func scanSummary(row rowScanner) (domain.Summary, error) {
	var (
		s    domain.Summary
		addr reference.Address
	)
	err := row.Scan(&s.OrderID, &s.UserID, &s.Username, &s.OrderDate, &s.TotalAmount, &s.Status,
		&s.PaymentMethod, &s.ShippingOption, &s.ShippingCost,
		&addr.Street, &addr.Ward, &addr.District, &addr.City)
	if err != nil {
		return domain.Summary{}, err
	}
	s.ShippingAddress = addr.Full()
	return s, nil
}

// ListByUser lists the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Summary, error) {
	return s.listOrders(ctx, selectSummary+` WHERE o.user_id = $1 ORDER BY o.order_date DESC, o.id DESC`, userID)
}

// ListAll lists every order, newest first, with the customer's username.
func (s *Store) ListAll(ctx context.Context) ([]domain.Summary, error) {
	return s.listOrders(ctx, selectSummary+` ORDER BY o.order_date DESC, o.id DESC`)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...any) ([]domain.Summary, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list orders: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Summary, 0)
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Detail returns the order with its items. An empty userID matches any owner.
func (s *Store) Detail(ctx context.Context, orderID, userID string) (*domain.Detail, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	sum, err := scanSummary(s.db.QueryRowContext(ctx,
		selectSummary+` WHERE o.id = $1 AND ($2 = '' OR o.user_id = $2)`, orderID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to read order: %w", err))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT oi.product_id, COALESCE(p.name, ''), COALESCE(p.description, ''), oi.quantity, oi.unit_price
		FROM order_items oi LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 ORDER BY oi.line_no`, orderID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to read order items: %w", err))
	}
	defer func() { _ = rows.Close() }()

	d := &domain.Detail{Summary: sum}
	for rows.Next() {
		var v domain.ItemView
		if err := rows.Scan(&v.ProductID, &v.ProductName, &v.ProductDescription, &v.Quantity, &v.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		d.Items = append(d.Items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return d, nil
}
