package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	componentStore    = "memory_store"
	defaultTxTimeout  = 5 * time.Second
	publishTimeout    = 300 * time.Millisecond
	storeOp           = "memory"
	idempotencyKeySep = "\x00"
)

// Store is a single-process transactional store. Units of work are
// serialized by a context-aware semaphore and hold the data lock for their
// whole duration, so readers never observe uncommitted state.
type Store struct {
	sem       chan struct{}
	mu        sync.RWMutex
	txTimeout time.Duration
	publisher domoutbox.Publisher
	log       observability.Logger

	products     map[string]*inventory.Product
	accounts     map[string]*account.Account
	transactions map[string][]account.Transaction
	carts        map[string][]cart.Line
	orders       map[string]*order.Order
	orderSeq     []string
	idempotency  map[string]string
	shipping     map[string]reference.ShippingOption
	shippingSeq  []string
	payments     map[string]reference.PaymentMethod
	paymentSeq   []string
	addresses    map[string]reference.Address
}

type Option func(*Store)

// WithTxTimeout bounds every unit of work, including the wait for the semaphore.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithPublisher receives the events recorded by a unit of work after it commits.
func WithPublisher(p domoutbox.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l observability.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.With(observability.F("component", componentStore))
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sem:          make(chan struct{}, 1),
		txTimeout:    defaultTxTimeout,
		log:          observability.NopLogger(),
		products:     make(map[string]*inventory.Product),
		accounts:     make(map[string]*account.Account),
		transactions: make(map[string][]account.Transaction),
		carts:        make(map[string][]cart.Line),
		orders:       make(map[string]*order.Order),
		idempotency:  make(map[string]string),
		shipping:     make(map[string]reference.ShippingOption),
		payments:     make(map[string]reference.PaymentMethod),
		addresses:    make(map[string]reference.Address),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ application.UnitOfWork = (*Store)(nil)

// Do runs fn as one atomic unit of work. Any error, including deadline expiry
// detected before commit, rolls back every mutation fn made.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return classify(ctx.Err())
	}
	defer func() { <-s.sem }()

	events, err := s.run(ctx, fn)
	if err != nil {
		return classify(err)
	}
	s.release(ctx, events)
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) ([]domoutbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		steps := len(tx.undo)
		tx.rollback()
		logctx.FromOr(ctx, s.log).Debug("tx_rolled_back",
			observability.F("undo_steps", steps),
			observability.F("error", err.Error()),
		)
		return nil, err
	}
	return tx.events, nil
}

// release hands committed events to the publisher. The unit of work has
// already committed, so failures are logged and not returned.
func (s *Store) release(ctx context.Context, events []domoutbox.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := logctx.FromOr(ctx, s.log)
	for _, e := range events {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.publisher.Publish(pubCtx, e)
		cancel()
		if err != nil {
			logger.Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("aggregate_id", e.AggregateID()),
				observability.F("error", err.Error()),
			)
		}
	}
}

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error { return nil }

// Seed loads reference and demo data, replacing entries with the same id.
func (s *Store) Seed(ctx context.Context, data seed.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range data.Accounts {
		s.accounts[a.UserID] = &a
	}
	for _, p := range data.Products {
		s.products[p.ID] = &p
	}
	for _, o := range data.ShippingOptions {
		if _, ok := s.shipping[o.ID]; !ok {
			s.shippingSeq = append(s.shippingSeq, o.ID)
		}
		s.shipping[o.ID] = o
	}
	for _, m := range data.PaymentMethods {
		if _, ok := s.payments[m.ID]; !ok {
			s.paymentSeq = append(s.paymentSeq, m.ID)
		}
		s.payments[m.ID] = m
	}
	for _, a := range data.Addresses {
		s.addresses[a.ID] = a
	}
	return nil
}

func (s *Store) readLock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classify(err)
	}
	s.mu.RLock()
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindTimeout, storeOp, err)
	}
	return err
}

func idempotencyKey(userID, key string) string {
	return userID + idempotencyKeySep + key
}
