package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/lib/pq"
)

const selectProduct = `SELECT p.id, COALESCE(p.shop_id, ''), COALESCE(s.name, ''), p.name, p.description, p.price, p.stock, p.updated_at
FROM products p LEFT JOIN shops s ON s.id = p.shop_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.ShopID, &p.ShopName, &p.Name, &p.Description, &p.Price, &p.Stock, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

type inventoryRepository struct{ tx *sql.Tx }

func (r inventoryRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(r.tx.QueryRowContext(ctx, selectProduct+` WHERE p.id = $1`, productID))
}

// Lock takes row locks in ascending id order so concurrent settlements over
// overlapping products cannot deadlock.
func (r inventoryRepository) Lock(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	rows, err := r.tx.QueryContext(ctx, selectProduct+` WHERE p.id = ANY($1) ORDER BY p.id FOR UPDATE OF p`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r inventoryRepository) TryDecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	res, err := r.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1 AND stock >= $2`,
		productID, quantity, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil || ok {
		return err
	}
	p, err := r.Get(ctx, productID)
	if err != nil {
		return err
	}
	return p.Shortage(quantity)
}

func getProduct(row *sql.Row) (*domain.Product, error) {
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product: %w", err)
	}
	return p, nil
}

// Product is the unlocked read used by monitoring.
func (s *Store) Product(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	p, err := getProduct(s.db.QueryRowContext(ctx, selectProduct+` WHERE p.id = $1`, productID))
	return p, classify(err)
}
