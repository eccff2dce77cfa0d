package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/events"
	httpapi "github.com/aussiebroadwan/craftconnect/internal/gateway/http"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/metrics"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/payment"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/service"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/session"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store/drivers/redis"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// Application encapsulates the session gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db        store.Store
	redisRevs *redis.Revocations // nil without REDIS_URL
	issuer    *jwtx.Issuer
	metrics   *metrics.Metrics

	// Events
	publisher *events.WatermillPublisher
	stopDrain context.CancelFunc

	// Services
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "craftconnect-gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	codec, err := jwtx.NewCodec(cfg.CodecConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.issuer = jwtx.NewIssuer(codec)

	if cfg.IsDev() && (cfg.JWTSecret == devAccessSecret || cfg.JWTRefreshSecret == devRefreshSecret) {
		app.logger.Warn("using development signing secrets")
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := app.initEvents(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("session gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"redis", app.redisRevs != nil,
		"login_enabled", app.cfg.IdentitySecret != "",
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("session gateway stopped")
	return nil
}

// Close releases the event publisher and the stores. Shutdown calls it; use
// it directly only when Run was never started.
func (app *Application) Close() error {
	if err := app.publisher.Close(); err != nil {
		app.logger.Error("error closing event publisher", "error", err)
	}
	if app.stopDrain != nil {
		app.stopDrain()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens sqlite, applies migrations and, with REDIS_URL set,
// moves the revocation list to redis.
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenDatabase(app.cfg)
	if err != nil {
		return err
	}
	app.logger.Info("database migrations applied successfully")

	if app.cfg.RedisURL == "" {
		app.db = db
		return nil
	}

	revs, err := redis.Open(ctx, app.cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redisRevs = revs
	app.db = store.WithRevocations(db, revs)
	app.logger.Info("revocation list backed by redis")
	return nil
}

// OpenDatabase opens the sqlite file named by cfg and applies migrations.
func OpenDatabase(cfg Config) (*sqlite.Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// initEvents picks redis streams when redis is configured, else an
// in-process channel with a logging consumer.
func (app *Application) initEvents(ctx context.Context) error {
	var pub message.Publisher

	if app.redisRevs != nil {
		p, err := events.NewRedisStreamPublisher(app.redisRevs.Client(), app.logger)
		if err != nil {
			return err
		}
		pub = p
	} else {
		ch := events.NewInProcess(app.logger)
		drainCtx, cancel := context.WithCancel(ctx)
		if err := events.Drain(drainCtx, ch, app.logger); err != nil {
			cancel()
			return err
		}
		app.stopDrain = cancel
		pub = ch
	}

	app.publisher = events.NewWatermillPublisher(pub)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Store:   app.db,
		Issuer:  app.issuer,
		Events:  app.publisher,
		Metrics: app.metrics,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Metrics = app.metrics
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.SessionService = app.sessionService
	router.Sessions = session.NewStore(app.issuer.Codec(), app.sessionService, !app.cfg.IsDev())
	router.Metrics = app.metrics
	router.IdentitySecret = app.cfg.IdentitySecret
	router.Payments = &httpapi.PaymentHandler{
		Verifier: payment.NewVerifier(app.cfg.RazorpayKeySecret),
		Orders:   payment.NewOrderClient(app.cfg.PaymentAPIBase, app.cfg.RazorpayKeyID, app.cfg.RazorpayKeySecret),
		Metrics:  app.metrics,
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
