package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
)

// Seed upserts reference and demo data in one transaction. Existing rows with
// the same id are overwritten, so seeding an already seeded database resets
// stock and balances to the dataset values.
func (s *Store) Seed(ctx context.Context, data seed.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin seed: %w", err))
	}
	if err := seedAll(ctx, tx, data); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit seed: %w", err))
	}
	return nil
}

func seedAll(ctx context.Context, tx *sql.Tx, data seed.Dataset) error {
	now := time.Now().UTC()
	for _, a := range data.Accounts {
		created := a.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, full_name, email, role, balance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name,
			email = EXCLUDED.email, role = EXCLUDED.role, balance = EXCLUDED.balance`,
			a.UserID, a.Username, a.FullName, a.Email, string(a.Role), a.Balance, created,
		)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", a.UserID, err)
		}
	}
	for _, p := range data.Products {
		if p.ShopID != "" {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO shops (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
				p.ShopID, p.ShopName,
			)
			if err != nil {
				return fmt.Errorf("failed to seed shop %s: %w", p.ShopID, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, shop_id, name, description, price, stock, updated_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET shop_id = EXCLUDED.shop_id, name = EXCLUDED.name,
			description = EXCLUDED.description, price = EXCLUDED.price, stock = EXCLUDED.stock, updated_at = EXCLUDED.updated_at`,
			p.ID, p.ShopID, p.Name, p.Description, p.Price, p.Stock, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
	}
	for _, o := range data.ShippingOptions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO shipping_options (id, name, company_name, cost) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, company_name = EXCLUDED.company_name, cost = EXCLUDED.cost`,
			o.ID, o.Name, o.CompanyName, o.Cost,
		)
		if err != nil {
			return fmt.Errorf("failed to seed shipping option %s: %w", o.ID, err)
		}
	}
	for _, m := range data.PaymentMethods {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payment_methods (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			m.ID, m.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to seed payment method %s: %w", m.ID, err)
		}
	}
	for _, a := range data.Addresses {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO addresses (id, user_id, street, ward, district, city) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, street = EXCLUDED.street,
			ward = EXCLUDED.ward, district = EXCLUDED.district, city = EXCLUDED.city`,
			a.ID, a.UserID, a.Street, a.Ward, a.District, a.City,
		)
		if err != nil {
			return fmt.Errorf("failed to seed address %s: %w", a.ID, err)
		}
	}
	return nil
}
