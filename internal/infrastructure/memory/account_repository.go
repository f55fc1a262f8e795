package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/shopspring/decimal"
)

type accountRepository struct{ tx *memTx }

func (r accountRepository) Lock(ctx context.Context, userID string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.tx.store.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (r accountRepository) TryDebitBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	return r.mutate(ctx, userID, func(a *domain.Account) error { return a.Debit(amount) })
}

func (r accountRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return r.mutate(ctx, userID, func(a *domain.Account) error { return a.Credit(amount) })
}

func (r accountRepository) mutate(ctx context.Context, userID string, fn func(*domain.Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := r.tx.store.accounts[userID]
	if !ok {
		return domain.ErrNotFound
	}
	prev := a.Balance
	if err := fn(a); err != nil {
		return err
	}
	r.tx.onRollback(func() { a.Balance = prev })
	return nil
}

func (r accountRepository) AppendTransaction(ctx context.Context, entry domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !entry.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if _, ok := r.tx.store.accounts[entry.UserID]; !ok {
		return domain.ErrNotFound
	}
	s := r.tx.store
	prevLen := len(s.transactions[entry.UserID])
	s.transactions[entry.UserID] = append(s.transactions[entry.UserID], entry)
	r.tx.onRollback(func() {
		s.transactions[entry.UserID] = s.transactions[entry.UserID][:prevLen]
	})
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (*domain.Account, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

// Transactions lists the history of userID, newest first.
func (s *Store) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if err := s.readLock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	if _, ok := s.accounts[userID]; !ok {
		return nil, domain.ErrNotFound
	}
	history := s.transactions[userID]
	out := make([]domain.Transaction, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
