package application

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

type IDGenerator interface {
	NewID() string
}

// Tx exposes the repositories bound to a single store transaction. Stock and
// balance mutations are only reachable from here.
type Tx interface {
	Orders() order.Repository
	Carts() cart.Repository
	Inventory() inventory.Repository
	Accounts() account.Repository
	References() reference.Repository
	Outbox() outbox.Recorder
}

// UnitOfWork runs fn inside one atomic store transaction. A non-nil error
// from fn rolls everything back; recorded events are released only after
// commit. Implementations bound the transaction by the store deadline and
// report expiry as a timeout.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
