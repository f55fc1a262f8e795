package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

type inventoryRepository struct{ tx *memTx }

func (r inventoryRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := r.tx.store.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// Lock returns copies; the data lock held by the unit of work already
// excludes every other writer.
func (r inventoryRepository) Lock(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := r.tx.store.products[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (r inventoryRepository) TryDecrementStock(ctx context.Context, productID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := r.tx.store.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	prevStock, prevUpdated := p.Stock, p.UpdatedAt
	if err := p.Deduct(quantity); err != nil {
		return err
	}
	r.tx.onRollback(func() {
		p.Stock = prevStock
		p.UpdatedAt = prevUpdated
	})
	return nil
}

// Product is the unlocked read used by monitoring.
func (s *Store) Product(ctx context.Context, productID string) (*domain.Product, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}
