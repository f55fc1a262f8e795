package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/shopspring/decimal"
)

const selectAccount = `SELECT id, username, full_name, email, role, balance, created_at FROM users`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.UserID, &a.Username, &a.FullName, &a.Email, &a.Role, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	return &a, nil
}

type accountRepository struct{ tx *sql.Tx }

func (r accountRepository) Lock(ctx context.Context, userID string) (*domain.Account, error) {
	return scanAccount(r.tx.QueryRowContext(ctx, selectAccount+` WHERE id = $1 FOR UPDATE`, userID))
}

func (r accountRepository) TryDebitBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	res, err := r.tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil || ok {
		return err
	}
	a, err := scanAccount(r.tx.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, userID))
	if err != nil {
		return err
	}
	return a.Shortfall(amount)
}

func (r accountRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (r accountRepository) AppendTransaction(ctx context.Context, entry domain.Transaction) error {
	if !entry.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO transaction_history (id, user_id, amount, type, description, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Amount, string(entry.Type), entry.Description, entry.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (*domain.Account, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	a, err := scanAccount(s.db.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, userID))
	return a, classify(err)
}

// Transactions lists the history of userID, newest first.
func (s *Store) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, classify(fmt.Errorf("failed to read account: %w", err))
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, created_at FROM transaction_history WHERE user_id = $1 ORDER BY seq DESC`,
		userID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list transactions: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
