package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Orders() order.Repository         { return orderRepository{t.tx} }
func (t *pgTx) Carts() cart.Repository           { return cartRepository{t.tx} }
func (t *pgTx) Inventory() inventory.Repository  { return inventoryRepository{t.tx} }
func (t *pgTx) Accounts() account.Repository     { return accountRepository{t.tx} }
func (t *pgTx) References() reference.Repository { return referenceRepository{t.tx} }
func (t *pgTx) Outbox() domoutbox.Recorder       { return t }

// Record writes e to the outbox table in the same transaction as the change
// it describes. The relay publishes it after commit.
func (t *pgTx) Record(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.EventName(), err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO outbox (name, aggregate_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		e.EventName(), e.AggregateID(), payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", e.EventName(), err)
	}
	return nil
}

// rowsAffected reports whether a conditional statement matched a row.
func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}
