package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

type orderRepository struct{ tx *memTx }

func (r orderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	s := r.tx.store
	if _, exists := s.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	key := ""
	if o.IdempotencyKey != "" {
		key = idempotencyKey(o.UserID, o.IdempotencyKey)
		if _, exists := s.idempotency[key]; exists {
			return domain.ErrConflict
		}
	}

	s.orders[o.ID] = o.Clone()
	s.orderSeq = append(s.orderSeq, o.ID)
	if key != "" {
		s.idempotency[key] = o.ID
	}
	r.tx.onRollback(func() {
		delete(s.orders, o.ID)
		s.orderSeq = s.orderSeq[:len(s.orderSeq)-1]
		if key != "" {
			delete(s.idempotency, key)
		}
	})
	return nil
}

func (r orderRepository) Lock(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.tx.store.orders[orderID]
	if !ok || (userID != "" && o.UserID != userID) {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, domain.ErrNotFound
	}
	s := r.tx.store
	id, ok := s.idempotency[idempotencyKey(userID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.tx.store.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != from {
		return nil, &apperr.Error{
			Kind: apperr.KindInvalidState,
			Op:   "order",
			Msg:  fmt.Sprintf("order %s is %s, expected %s", orderID, o.Status, from),
			Err:  domain.ErrInvalidStateTransition,
		}
	}
	prevStatus, prevUpdated := o.Status, o.UpdatedAt
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	r.tx.onRollback(func() {
		o.Status = prevStatus
		o.UpdatedAt = prevUpdated
	})
	return o.Clone(), nil
}

// ListByUser lists the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Summary, error) {
	return s.listOrders(ctx, func(o *domain.Order) bool { return o.UserID == userID })
}

// ListAll lists every order, newest first, with the customer's username.
func (s *Store) ListAll(ctx context.Context) ([]domain.Summary, error) {
	return s.listOrders(ctx, func(*domain.Order) bool { return true })
}

func (s *Store) listOrders(ctx context.Context, keep func(*domain.Order) bool) ([]domain.Summary, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	out := make([]domain.Summary, 0)
	for i := len(s.orderSeq) - 1; i >= 0; i-- {
		o := s.orders[s.orderSeq[i]]
		if o == nil || !keep(o) {
			continue
		}
		out = append(out, s.summarize(o))
	}
	return out, nil
}

// Detail returns the order with its items. An empty userID matches any owner.
func (s *Store) Detail(ctx context.Context, orderID, userID string) (*domain.Detail, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok || (userID != "" && o.UserID != userID) {
		return nil, domain.ErrNotFound
	}
	d := &domain.Detail{Summary: s.summarize(o)}
	for _, it := range o.Items {
		view := domain.ItemView{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
		if p, ok := s.products[it.ProductID]; ok {
			view.ProductName = p.Name
			view.ProductDescription = p.Description
		}
		d.Items = append(d.Items, view)
	}
	return d, nil
}

// summarize must be called with the data lock held.
func (s *Store) summarize(o *domain.Order) domain.Summary {
	sum := domain.Summary{
		OrderID:      o.ID,
		UserID:       o.UserID,
		OrderDate:    o.OrderDate,
		TotalAmount:  o.TotalAmount,
		Status:       o.Status,
		ShippingCost: decimal.Zero,
	}
	if a, ok := s.accounts[o.UserID]; ok {
		sum.Username = a.Username
	}
	if m, ok := s.payments[o.PaymentMethodID]; ok {
		sum.PaymentMethod = m.Name
	}
	if opt, ok := s.shipping[o.ShippingOptionID]; ok {
		sum.ShippingOption = opt.Name
		sum.ShippingCost = opt.Cost
	}
	if addr, ok := s.addresses[o.ShippingAddressID]; ok {
		sum.ShippingAddress = addr.Full()
	}
	return sum
}
