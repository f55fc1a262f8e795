package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

type referenceRepository struct{ tx *sql.Tx }

func (r referenceRepository) ShippingOption(ctx context.Context, id string) (*domain.ShippingOption, error) {
	var o domain.ShippingOption
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, name, company_name, cost FROM shipping_options WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CompanyName, &o.Cost)
	if err := notFound(err, domain.ErrUnknownShippingOption, "shipping option"); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r referenceRepository) PaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := r.tx.QueryRowContext(ctx, `SELECT id, name FROM payment_methods WHERE id = $1`, id).Scan(&m.ID, &m.Name)
	if err := notFound(err, domain.ErrUnknownPaymentMethod, "payment method"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r referenceRepository) Address(ctx context.Context, id string) (*domain.Address, error) {
	var a domain.Address
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, user_id, street, ward, district, city FROM addresses WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.Street, &a.Ward, &a.District, &a.City)
	if err := notFound(err, domain.ErrUnknownAddress, "address"); err != nil {
		return nil, err
	}
	return &a, nil
}

func notFound(err, missing error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return missing
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", what, err)
	}
	return nil
}

func (s *Store) ShippingOptions(ctx context.Context) ([]domain.ShippingOption, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, company_name, cost FROM shipping_options ORDER BY position`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list shipping options: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.ShippingOption, 0)
	for rows.Next() {
		var o domain.ShippingOption
		if err := rows.Scan(&o.ID, &o.Name, &o.CompanyName, &o.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan shipping option: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Store) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM payment_methods ORDER BY position`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list payment methods: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.PaymentMethod, 0)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
