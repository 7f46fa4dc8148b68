package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	httpapi "github.com/aussiebroadwan/scagate/internal/sca/http"
	"github.com/aussiebroadwan/scagate/internal/sca/service"
	"github.com/aussiebroadwan/scagate/internal/sca/spi/mockbank"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/internal/sca/store/drivers/postgres"
	"github.com/aussiebroadwan/scagate/internal/sca/store/drivers/sqlite"
	"github.com/aussiebroadwan/scagate/pkg/cryptox"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/jwtx"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	cache    cache.Client
	profile  domain.AspspProfile
	verifier jwtx.Verifier
	registry *prometheus.Registry

	// Engine and services
	dispatcher          *engine.Dispatcher
	authService         *service.AuthorisationService
	redirectService     *service.RedirectService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "scagate",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New creates a new Application instance with all dependencies initialized
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg:      cfg,
		logger:   NewLogger(cfg),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The mock bank hashes its fixture passwords with the pepper
	cryptox.SetPepperPath(app.cfg.PepperFile)

	profile, err := domain.LoadProfile(cfg.ProfileFile)
	if err != nil {
		return nil, err
	}
	app.profile = profile

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	app.cache, err = cache.New(ctx, cache.Config{
		Driver:   cfg.CacheDriver,
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   "scagate",
	})
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := app.initVerifier(); err != nil {
		app.closeStores()
		return nil, err
	}

	if err := app.initEngine(); err != nil {
		app.closeStores()
		return nil, err
	}

	app.initServices()
	if err := app.initHTTP(); err != nil {
		app.closeStores()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.housekeepingService.Start()

	app.logger.Info("scagate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database", app.cfg.DatabaseDriver,
		"cache", app.cfg.CacheDriver,
		"approaches", app.profile.ScaApproaches,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info("shutdown requested")
		return app.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down scagate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing cache", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("scagate stopped")
	return nil
}

// Handler exposes the routed API without starting the server or the
// housekeeping worker.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Close releases the store and cache of an application that was never Run.
func (app *Application) Close() {
	app.closeStores()
}

func (app *Application) closeStores() {
	if app.cache != nil {
		_ = app.cache.Close()
	}
	_ = app.db.Close()
}

// OpenStore opens the configured database driver without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite", "":
		host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", cfg.DatabaseDSN)
		return sqlite.NewStore(host)
	case "postgres":
		return postgres.NewStore(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initVerifier loads the authorisation server's keys. Without them bearer
// tokens are ignored and OAUTH can't be offered.
func (app *Application) initVerifier() error {
	if app.cfg.OAuthJWKSFile == "" {
		if app.profile.Supports(domain.ApproachOAuth) {
			return errors.New("profile offers OAUTH but SCA_OAUTH_JWKS_FILE is not set")
		}
		return nil
	}

	keys, err := jwtx.LoadJWKS(app.cfg.OAuthJWKSFile)
	if err != nil {
		return fmt.Errorf("failed to load OAuth keys: %w", err)
	}
	app.verifier = jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Issuer:   app.cfg.OAuthIssuer,
		Audience: app.cfg.OAuthAudience,
		Leeway:   30 * time.Second,
	})
	app.logger.Info("bearer token verification enabled", "issuer", app.cfg.OAuthIssuer)
	return nil
}

// initEngine builds the stage processors for the mock bank's plugins.
func (app *Application) initEngine() error {
	bank, err := mockbank.Load(app.cfg.BankFixturesFile)
	if err != nil {
		return err
	}

	m, err := engine.NewMetrics(app.registry)
	if err != nil {
		return fmt.Errorf("failed to register engine metrics: %w", err)
	}

	resolver, err := engine.NewResolver(engine.Processors(bank.Plugins(), app.db, m)...)
	if err != nil {
		return fmt.Errorf("failed to build stage resolver: %w", err)
	}

	app.dispatcher = engine.NewDispatcher(app.db, resolver, m)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.authService = &service.AuthorisationService{
		Store:   app.db,
		Cache:   app.cache,
		Profile: app.profile,
	}
	app.redirectService = &service.RedirectService{
		Store: app.db,
		Cache: app.cache,
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.cache,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.Retention,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	metrics, err := httpx.NewHTTPMetrics(app.registry)
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	router := httpapi.NewRouter(
		app.verifier,
		BuildVersion,
		app.db,
		app.cache,
		app.logger,
	)

	router.Metrics = metrics
	router.Gatherer = app.registry
	router.Dispatcher = app.dispatcher
	router.AuthorisationService = app.authService
	router.RedirectService = app.redirectService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
