package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

type referenceRepository struct{ tx *memTx }

func (r referenceRepository) ShippingOption(ctx context.Context, id string) (*domain.ShippingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.tx.store.shipping[id]
	if !ok {
		return nil, domain.ErrUnknownShippingOption
	}
	return &o, nil
}

func (r referenceRepository) PaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := r.tx.store.payments[id]
	if !ok {
		return nil, domain.ErrUnknownPaymentMethod
	}
	return &m, nil
}

func (r referenceRepository) Address(ctx context.Context, id string) (*domain.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.tx.store.addresses[id]
	if !ok {
		return nil, domain.ErrUnknownAddress
	}
	return &a, nil
}

func (s *Store) ShippingOptions(ctx context.Context) ([]domain.ShippingOption, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	out := make([]domain.ShippingOption, 0, len(s.shippingSeq))
	for _, id := range s.shippingSeq {
		out = append(out, s.shipping[id])
	}
	return out, nil
}

func (s *Store) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	out := make([]domain.PaymentMethod, 0, len(s.paymentSeq))
	for _, id := range s.paymentSeq {
		out = append(out, s.payments[id])
	}
	return out, nil
}
