package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codu-code/codu/internal/api"
	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/logger"
	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/scheduler"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/storage"
)

const defaultConfigPath = "config.yaml"

var mainLogger zerolog.Logger

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	configPath := os.Getenv("CODU_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	setLoggers(logger.New(cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		mainLogger.Fatal().Err(err).Msg("Server failed")
	}
}

// setLoggers installs a component logger in every package.
func setLoggers(l zerolog.Logger) {
	component := func(name string) zerolog.Logger {
		return l.With().Str("component", name).Logger()
	}

	mainLogger = component("main")
	api.SetLogger(component("api"))
	auth.SetLogger(component("auth"))
	cache.SetLogger(component("cache"))
	config.SetLogger(component("config"))
	db.SetLogger(component("db"))
	render.SetLogger(component("render"))
	repository.SetLogger(component("repository"))
	rpc.SetLogger(component("rpc"))
	scheduler.SetLogger(component("scheduler"))
	sse.SetLogger(component("sse"))
	storage.SetLogger(component("storage"))
}

// app holds the long-lived services built from a config.
type app struct {
	cfg       *config.Config
	db        db.DB
	cache     cache.Store
	server    *api.Server
	scheduler *scheduler.Scheduler
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.InitDB(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &app{cfg: cfg, db: database}
	a.cache = cache.Open(ctx, cfg.Cache.RedisURL)

	m, metricsHandler, err := metrics.Setup("codu")
	if err != nil {
		a.close()
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	renderer := render.NewRenderer(a.cache, cfg.Cache.TTL)
	renderer.OnLookup = m.RecordRenderCache

	repos := repository.New(database, nil)
	clients := sse.NewSSEClients()

	schedOpts := []scheduler.Option{
		scheduler.WithSessionPurger(repos.Users),
		scheduler.WithMetrics(m),
	}

	var provider auth.AuthProvider
	switch cfg.Auth.Type {
	case config.AuthClerk:
		clerk, err := auth.NewClerkAuthProvider(repos.Users, cfg.Auth.ClerkSecretKey, cfg.Auth.ClerkWebhookSecret)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("setup clerk auth: %w", err)
		}
		provider = clerk
	default:
		ed := auth.NewEd25519AuthProvider(repos.Users, cfg.Auth.SessionTTL, cfg.Auth.ChallengeTTL)
		schedOpts = append(schedOpts, scheduler.WithChallengePurger(ed.PurgeChallenges))
		provider = ed
	}

	var uploader storage.Uploader = storage.Disabled{}
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("setup storage: %w", err)
		}
		uploader = s3
	}

	router := rpc.NewRouter(rpc.Deps{
		Repos:       repos,
		Renderer:    renderer,
		Clients:     clients,
		Uploader:    uploader,
		Metrics:     m,
		PageSize:    cfg.Content.PageSize,
		MaxPageSize: cfg.Content.MaxPageSize,
		SyntaxTheme: cfg.Content.SyntaxTheme,
	})

	a.server = &api.Server{
		Config:         cfg,
		DB:             database,
		Cache:          a.cache,
		Auth:           provider,
		RPC:            router,
		Clients:        clients,
		Metrics:        m,
		MetricsHandler: metricsHandler,
	}

	if cfg.Scheduler.Enabled {
		a.scheduler = scheduler.New(repos.Posts, renderer, clients, cfg.Scheduler.Interval, schedOpts...)
	}

	mainLogger.Info().
		Str("driver", database.Dialect()).
		Str("auth", cfg.Auth.Type).
		Bool("storage", cfg.Storage.Enabled).
		Int("procedures", len(router.Procedures())).
		Msg("Services ready")
	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			mainLogger.Error().Err(err).Msg("Error closing cache")
		}
	}
	if err := a.db.Close(); err != nil {
		mainLogger.Error().Err(err).Msg("Error closing database")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Cancelling ctx ends open notification streams so Shutdown can finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mainLogger.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		mainLogger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
