// Package postgres is the database/sql + lib/pq implementation of the
// checkout store. Units of work are Postgres transactions; stock and balance
// are changed only through conditional UPDATEs on rows locked FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/lib/pq"
)

const (
	componentStore     = "postgres_store"
	storeOp            = "postgres"
	defaultTxTimeout   = 5 * time.Second
	defaultReadTimeout = 3 * time.Second
	defaultMaxRetries  = 3
	retryBackoff       = 20 * time.Millisecond
)

//go:embed schema.sql
var schema string

type Store struct {
	db          *sql.DB
	txTimeout   time.Duration
	readTimeout time.Duration
	maxRetries  int
	log         observability.Logger
}

type Option func(*Store)

func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithMaxRetries bounds how often a unit of work is replayed after a
// serialization failure or deadlock.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.With(observability.F("component", componentStore))
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	s := New(db, opts...)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		txTimeout:   defaultTxTimeout,
		readTimeout: defaultReadTimeout,
		maxRetries:  defaultMaxRetries,
		log:         observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ application.UnitOfWork = (*Store)(nil)

// Init creates the schema when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify(fmt.Errorf("failed to apply schema: %w", err))
	}
	return nil
}

// Do runs fn inside one transaction bounded by the store deadline. Transient
// serialization failures replay fn while retries and the deadline allow.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var err error
	for attempt := 0; ; attempt++ {
		err = s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= s.maxRetries || ctx.Err() != nil {
			break
		}
		logctx.FromOr(ctx, s.log).Debug("tx_retry",
			observability.F("attempt", attempt+1),
			observability.F("error", err.Error()),
		)
		select {
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return classify(ctx.Err())
		}
	}
	return classify(err)
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// read bounds a display read by the read timeout.
func (s *Store) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.readTimeout)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.read(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const (
	codeUniqueViolation     = pq.ErrorCode("23505")
	codeForeignKeyViolation = pq.ErrorCode("23503")
	codeSerialization       = pq.ErrorCode("40001")
	codeDeadlock            = pq.ErrorCode("40P01")
	codeQueryCanceled       = pq.ErrorCode("57014")
	codeAdminShutdown       = pq.ErrorCode("57P01")
	codeCannotConnectNow    = pq.ErrorCode("57P03")
	classConnection         = pq.ErrorClass("08")
)

func pqCode(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

func retryable(err error) bool {
	code, ok := pqCode(err)
	return ok && (code == codeSerialization || code == codeDeadlock)
}

func isUniqueViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeForeignKeyViolation
}

// classify turns driver failures into error kinds. Domain errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var stock *apperr.StockShortage
	var balance *apperr.BalanceShortfall
	if errors.As(err, &stock) || errors.As(err, &balance) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindTimeout, storeOp, err)
	}
	if code, ok := pqCode(err); ok {
		switch {
		case code.Class() == classConnection, code == codeAdminShutdown, code == codeCannotConnectNow:
			return apperr.Wrap(apperr.KindStoreUnavailable, storeOp, err)
		case code == codeQueryCanceled:
			return apperr.Wrap(apperr.KindTimeout, storeOp, err)
		case code == codeSerialization, code == codeDeadlock:
			return apperr.Wrap(apperr.KindConflict, storeOp, err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return apperr.Wrap(apperr.KindStoreUnavailable, storeOp, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.KindStoreUnavailable, storeOp, err)
	}
	return err
}
