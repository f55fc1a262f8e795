package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

// memTx is valid only inside Store.run, which holds the data lock.
type memTx struct {
	store  *Store
	undo   []func()
	events []domoutbox.Event
}

func (t *memTx) Orders() order.Repository         { return orderRepository{t} }
func (t *memTx) Carts() cart.Repository           { return cartRepository{t} }
func (t *memTx) Inventory() inventory.Repository  { return inventoryRepository{t} }
func (t *memTx) Accounts() account.Repository     { return accountRepository{t} }
func (t *memTx) References() reference.Repository { return referenceRepository{t} }
func (t *memTx) Outbox() domoutbox.Recorder       { return t }

func (t *memTx) Record(ctx context.Context, e domoutbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e != nil {
		t.events = append(t.events, e)
	}
	return nil
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.events = nil
}
