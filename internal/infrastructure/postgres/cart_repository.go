package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
)

type cartRepository struct{ tx *sql.Tx }

func (r cartRepository) Lines(ctx context.Context, userID string) ([]domain.Line, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT user_id, product_id, quantity, added_at FROM cart_items WHERE user_id = $1 ORDER BY added_at, product_id FOR UPDATE`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Line, 0)
	for rows.Next() {
		var l domain.Line
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Quantity, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r cartRepository) Quantity(ctx context.Context, userID, productID string) (int, error) {
	var q int
	err := r.tx.QueryRowContext(ctx,
		`SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE`,
		userID, productID,
	).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cart line: %w", err)
	}
	return q, nil
}

func (r cartRepository) Upsert(ctx context.Context, userID, productID string, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		userID, productID, quantity, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cart line: %w", err)
	}
	return nil
}

func (r cartRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// ListLines joins the cart with live product data. Lines whose product
// disappeared are skipped by the inner join.
func (s *Store) ListLines(ctx context.Context, userID string) ([]domain.LineView, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.description, COALESCE(sh.name, ''), c.quantity, p.price, p.stock
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		LEFT JOIN shops sh ON sh.id = p.shop_id
		WHERE c.user_id = $1
		ORDER BY c.added_at, c.product_id`,
		userID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list cart: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.LineView, 0)
	for rows.Next() {
		var v domain.LineView
		if err := rows.Scan(&v.ProductID, &v.ProductName, &v.ProductDescription, &v.ShopName, &v.Quantity, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
