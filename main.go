package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-settlement/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-settlement/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-settlement/internal/application/payment"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	appship "github.com/Zhima-Mochi/minishop-settlement/internal/application/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/config"
	dominv "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/carrier"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/memory"
	obsadapter "github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/postgres"
	redisstore "github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-settlement/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-settlement/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// store is what a persistence driver must provide to the use cases.
type store interface {
	domorder.UnitOfWork
	domorder.Repository
	dompromo.Repository
	dominv.Oracle
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
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := oteltrace.NewProvider(ctx, oteltrace.ProviderConfig{
		Service:     cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			systemLogger.Error("tracer_provider_shutdown_error", zap.Error(err))
		}
	}()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if cfg.OTLPEndpoint != "" {
		systemLogger.Info("otlp_exporter_enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	counters, histograms := prometrics.Standard(prometrics.New("", "", nil))
	tel := obsadapter.New(obsadapter.Options{
		Tracer:     oteltrace.NewWithProvider(cfg.ServiceName, tp),
		Logger:     zaplogger.New(baseLogger),
		Counters:   counters,
		Histograms: histograms,
	})

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	st, err := openStore(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	if c, ok := st.(io.Closer); ok {
		closers = append(closers, c)
	}

	bus := outbox.NewBus(tel)
	var publisher domoutbox.Publisher = bus
	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kp := kafka.NewPublisher(brokers, cfg.KafkaTopic, tel.Logger())
		closers = append(closers, kp)
		publisher = outbox.Tee{bus, kp}
		systemLogger.Info("kafka_publisher_enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}

	catalog, rates := shippingSources(cfg, tel)

	var sessions dompay.SessionStore = memory.NewSessionStore()
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, rdb)
		rates = redisstore.NewRateCache(rdb, rates, cfg.RateCacheTTL, tel.Logger())
		sessions = redisstore.NewSessionStore(rdb)
		systemLogger.Info("redis_enabled", zap.String("addr", cfg.RedisAddr))
	}

	ids := id.NewUUIDGenerator("")
	promotions := apppromo.NewEvaluateUseCase(st, tel, apppromo.WithTimeout(cfg.RulesTimeout))
	shipping := appship.NewOptionsUseCase(rates, tel, cfg.RatesTimeout)
	transitions := apporder.NewTransitionUseCase(st, publisher, tel)
	payments := apppayment.NewSessionUseCase(st, memory.NewGateway(cfg.PaymentBaseURL), sessions, publisher, tel, cfg.GatewayTimeout)
	checkout := appcheckout.NewService(
		appship.NewGate(catalog, tel, cfg.CatalogTimeout),
		appinventory.NewAvailabilityUseCase(st, tel, cfg.StockTimeout),
		promotions,
		shipping,
		apporder.NewCreateOrdersUseCase(st, st, id.NewUUIDGenerator("ord_"), publisher, tel, cfg.TxTimeout),
		ids,
		tel,
	)

	subscriber := workerpresentation.NewSubscriber(bus, tel)
	apporder.NewWorker(transitions, subscriber, tel).Start()
	apppayment.NewWorker(subscriber, payments, tel).Start()
	bus.Start(ctx)

	handler := httppresentation.NewHandler(httppresentation.Services{
		Checkout:    checkout,
		Promotions:  promotions,
		Shipping:    shipping,
		Transitions: transitions,
		Payments:    payments,
	}, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	bus.Stop(shutdownCtx)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store, error) {
	if cfg.StoreDriver != config.DriverPostgres {
		st := memory.NewStore()
		if err := seedDemo(st); err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		return st, nil
	}

	if cfg.Migrate {
		if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info("database_migrated")
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &closingStore{Store: postgres.NewStore(db), db: db}, nil
}

type closingStore struct {
	*postgres.Store
	db io.Closer
}

func (s *closingStore) Close() error { return s.db.Close() }

// shippingSources returns the carrier service when one is configured and the
// in-memory demo tables otherwise.
func shippingSources(cfg *config.Config, tel observability.Observability) (domship.Catalog, domship.RateProvider) {
	if cfg.CarrierRatesURL != "" {
		c := carrier.NewClient(cfg.CarrierRatesURL, &http.Client{Timeout: cfg.RatesTimeout}, tel)
		return c, c
	}
	catalog := memory.NewCatalog()
	rates := memory.NewRateTable()
	seedShipping(catalog, rates)
	return catalog, rates
}
