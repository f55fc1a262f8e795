package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appaccount "github.com/Zhima-Mochi/minishop-checkout/internal/application/account"
	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/ratelimit"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/seed"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 10 * time.Second
	limiterSweepPeriod = time.Minute
)

// store is what both backends provide: the unit of work plus the unlocked
// display reads.
type store interface {
	application.UnitOfWork
	order.Reader
	cart.Reader
	account.Reader
	reference.Reader
	inventory.Reader
	seed.Target
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, err := logging.NewLogger(cfg.ServiceName, cfg.Env,
		logging.WithLevel(cfg.LogLevel),
		logging.WithFile(cfg.LogFile),
	)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := zaplogger.New(logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
		Insecure:     true,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			systemLogger.Warn("tracer_shutdown_error", observability.F("error", err.Error()))
		}
	}()

	metrics, err := prometrics.NewStandard("")
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	tel := infraobs.New(
		oteltrace.New(tp, cfg.ServiceName),
		zaplogger.New(baseLogger),
		metrics,
	)

	// Committed events reach the in-process workers through the bus and,
	// when brokers are configured, Kafka.
	bus := outbox.NewBus(tel.Logger())
	bus.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		bus.Stop(sctx)
	}()

	publishers := outbox.Fanout{bus}
	if kc := kafka.NewClient(cfg.KafkaBrokers); kc.Enabled() {
		kp := kafka.NewPublisher(kc.NewWriter(), cfg.KafkaTopicPrefix, tel)
		defer func() { _ = kp.Close() }()
		publishers = append(publishers, kp)
		systemLogger.Info("kafka_publisher_enabled", observability.F("brokers", cfg.KafkaBrokers))
	}

	bg, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	st, err := openStore(ctx, bg, cfg, tel, publishers)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.SeedDemoData {
		if err := st.Seed(ctx, seed.Demo()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		systemLogger.Info("demo_data_seeded")
	}

	apporder.NewWorker(st, tel).Start(bus, workerpresentation.Middleware(tel.Logger(), "order"))
	appinventory.NewStockWatchWorker(st, st, cfg.LowStockThreshold, tel).
		Start(bus, workerpresentation.Middleware(tel.Logger(), "stock_watch"))

	idGenerator := id.NewUUIDGenerator()
	opts := []httppresentation.Option{
		httppresentation.WithHealthChecker(st),
		httppresentation.WithMetricsHandler(metrics.Handler()),
	}
	if limiter := newLimiter(bg, cfg, systemLogger); limiter != nil {
		opts = append(opts, httppresentation.WithRateLimiter(limiter))
	}

	handler := httppresentation.NewHandler(httppresentation.UseCases{
		AddToCart:           appcart.NewAddItemUseCase(st, tel),
		UpdateCartItem:      appcart.NewSetItemQuantityUseCase(st, tel),
		ListCart:            appcart.NewListItemsUseCase(st, tel),
		CreateOrder:         checkout.NewCreateOrderUseCase(st, idGenerator, tel),
		PayOrder:            payment.NewPayOrderUseCase(st, idGenerator, tel),
		ListOrders:          apporder.NewListOrdersUseCase(st, tel),
		GetOrderDetail:      apporder.NewGetOrderDetailUseCase(st, tel),
		CancelOrder:         apporder.NewCancelOrderUseCase(st, tel),
		ListAllOrders:       apporder.NewListAllOrdersUseCase(st, tel),
		AdvanceStatus:       apporder.NewAdvanceStatusUseCase(st, tel),
		Deposit:             appaccount.NewDepositUseCase(st, idGenerator, tel),
		GetAccount:          appaccount.NewGetAccountUseCase(st, tel),
		ListTransactions:    appaccount.NewListTransactionsUseCase(st, tel),
		ListShippingOptions: checkout.NewListShippingOptionsUseCase(st, tel),
		ListPaymentMethods:  checkout.NewListPaymentMethodsUseCase(st, tel),
	}, tel, opts...)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store", cfg.StoreDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	cancelBackground()
	return nil
}

// openStore builds the configured backend. Postgres persists events in its
// outbox table and a relay running on bg forwards them to publishers; the
// memory store hands them over right after commit.
func openStore(ctx, bg context.Context, cfg *config.Config, tel observability.Observability, publishers outbox.Fanout) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL,
			postgres.WithTxTimeout(cfg.TxTimeout),
			postgres.WithReadTimeout(cfg.ReadTimeout),
			postgres.WithMaxRetries(cfg.TxMaxRetries),
			postgres.WithLogger(tel.Logger()),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		relay := outbox.NewRelay(pg, tel, []domoutbox.Publisher(publishers),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
		)
		go func() { _ = relay.Run(bg) }()
		return pg, nil
	default:
		return memory.NewStore(
			memory.WithTxTimeout(cfg.TxTimeout),
			memory.WithPublisher(publishers),
			memory.WithLogger(tel.Logger()),
		), nil
	}
}

// newLimiter returns nil when rate limiting is disabled. With REDIS_ADDR set
// the buckets are shared between replicas.
func newLimiter(bg context.Context, cfg *config.Config, log observability.Logger) httppresentation.RateLimiter {
	if !cfg.RateLimitEnabled() {
		return nil
	}
	if cfg.RedisAddr != "" {
		log.Info("rate_limiter_redis", observability.F("addr", cfg.RedisAddr))
		return ratelimit.NewRedis(ratelimit.NewRedisClient(cfg.RedisAddr), cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	local := ratelimit.NewLocal(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go local.Run(bg, limiterSweepPeriod)
	return local
}
