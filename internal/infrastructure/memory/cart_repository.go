package memory

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
)

type cartRepository struct{ tx *memTx }

func (r cartRepository) Lines(ctx context.Context, userID string) ([]domain.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.Line(nil), r.tx.store.carts[userID]...), nil
}

func (r cartRepository) Quantity(ctx context.Context, userID, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, l := range r.tx.store.carts[userID] {
		if l.ProductID == productID {
			return l.Quantity, nil
		}
	}
	return 0, nil
}

func (r cartRepository) Upsert(ctx context.Context, userID, productID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	lines := r.snapshot(userID)
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			r.tx.store.carts[userID] = lines
			return nil
		}
	}
	r.tx.store.carts[userID] = append(lines, domain.Line{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now().UTC(),
	})
	return nil
}

func (r cartRepository) Remove(ctx context.Context, userID, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current := r.tx.store.carts[userID]
	kept := make([]domain.Line, 0, len(current))
	for _, l := range current {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(current) {
		return nil
	}
	r.snapshot(userID)
	r.tx.store.carts[userID] = kept
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.snapshot(userID)
	delete(r.tx.store.carts, userID)
	return nil
}

// snapshot registers a restore of the user's cart and returns a private copy to edit.
func (r cartRepository) snapshot(userID string) []domain.Line {
	s := r.tx.store
	prev, existed := s.carts[userID]
	r.tx.onRollback(func() {
		if existed {
			s.carts[userID] = prev
		} else {
			delete(s.carts, userID)
		}
	})
	return append([]domain.Line(nil), prev...)
}

// ListLines joins the cart with live product data in insertion order. Lines
// whose product disappeared are skipped.
func (s *Store) ListLines(ctx context.Context, userID string) ([]domain.LineView, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	lines := s.carts[userID]
	out := make([]domain.LineView, 0, len(lines))
	for _, l := range lines {
		p, ok := s.products[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, domain.LineView{
			ProductID:          p.ID,
			ProductName:        p.Name,
			ProductDescription: p.Description,
			ShopName:           p.ShopName,
			Quantity:           l.Quantity,
			Price:              p.Price,
			Stock:              p.Stock,
		})
	}
	return out, nil
}
