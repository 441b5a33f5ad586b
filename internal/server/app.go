// Package server wires configuration, storage, ledger services and the
// gRPC and HTTP transports into a runnable application.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/cache"
	"github.com/dmitrijs2005/pointledger/internal/server/config"
	"github.com/dmitrijs2005/pointledger/internal/server/httpapi"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/mirror"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/pointledger/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	publisher *mirror.Publisher
	rateCache *cache.RateCache

	users       *services.UserService
	conversions *services.ConversionService
	trades      *services.TradeService
	rates       *services.RateResolver
	sweeper     *services.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogBackend, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config
	now := timex.UTCNow

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	base := services.DefaultReserveRates()
	if err := services.SeedReferenceData(ctx, app.db, m, base, now()); err != nil {
		return fmt.Errorf("seed error: %w", err)
	}

	table, err := services.LoadTierTable(ctx, app.db, m)
	if err != nil {
		return fmt.Errorf("tier table error: %w", err)
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(c.MetricsNamespace, app.registry)

	sinks, err := app.mirrorSinks(ctx)
	if err != nil {
		return err
	}
	app.publisher = mirror.NewPublisher(app.logger, app.metrics, c.MirrorQueueSize, sinks...)

	source := services.NewStubRateSource(base, c.RateJitter, uint64(now().UnixNano()))
	app.rates = services.NewRateResolver(app.db, m, source, c.RateTTL, now, app.logger, app.metrics)
	if c.RedisAddr != "" {
		app.rateCache = cache.New(cache.Config{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}, c.RateCacheTTL, app.logger)
		if err := app.rateCache.Ping(ctx); err != nil {
			app.logger.Warn(ctx, "redis unavailable, rates are read from the database", "error", err)
		}
		app.rates.WithCache(app.rateCache)
	}

	locker := services.NewWalletLocker()
	ledger := services.NewLedger(app.db, m, locker, app.logger, app.metrics)
	tiers := services.NewTierEngine(app.db, m, table, now, app.logger, app.metrics)

	app.users = services.NewUserService(app.db, m, ledger, c, app.logger)
	app.conversions = services.NewConversionService(app.db, m, ledger, app.rates, tiers, app.publisher, now, app.logger, app.metrics)
	app.trades = services.NewTradeService(app.db, m, ledger, app.rates, tiers, app.publisher, now, app.logger, app.metrics)
	app.sweeper = services.NewSweeper(app.trades, c.SweepInterval, c.SweepBatch, app.logger)

	return nil
}

func (app *App) mirrorSinks(ctx context.Context) ([]mirror.Sink, error) {
	c := app.config
	var sinks []mirror.Sink

	if len(c.KafkaBrokers) > 0 {
		sinks = append(sinks, mirror.NewKafkaSink(c.KafkaBrokers, c.KafkaTopic))
		app.logger.Info(ctx, "kafka mirror enabled", "topic", c.KafkaTopic)
	}

	if c.S3Bucket != "" {
		s3, err := mirror.NewS3Sink(ctx, mirror.S3Config{
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 mirror init error: %w", err)
		}
		sinks = append(sinks, s3)
		app.logger.Info(ctx, "s3 mirror enabled", "bucket", c.S3Bucket)
	}

	return sinks, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.users, app.conversions, app.trades, app.rates,
		app.config.SecretKey, app.metrics)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.New(app.config.EndpointAddrHTTP, app.logger, httpapi.Dependencies{
		Rates:    app.rates,
		Users:    app.users,
		Offers:   app.trades,
		Quotes:   app.conversions,
		Gatherer: app.registry,
	})
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.publisher.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	app.publisher.Close()
	if app.rateCache != nil {
		if err := app.rateCache.Close(); err != nil {
			app.logger.Warn(ctx, "closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
