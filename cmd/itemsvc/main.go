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

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"itemsvc/internal/api"
	"itemsvc/internal/config"
	"itemsvc/internal/logging"
	"itemsvc/internal/metrics"
	"itemsvc/internal/store"
)

// Populated at build-time via -ldflags.
var version = "dev"

type flags struct {
	envFile  string
	logLevel string
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:    "itemsvc",
		Usage:   "Serve the items CRUD API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "optional .env file loaded before reading the environment",
				Sources:     cli.EnvVars("ITEMSVC_ENV_FILE"),
				Value:       ".env",
				Destination: &f.envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error); overrides LOG_LEVEL",
				Sources:     cli.EnvVars("ITEMSVC_LOG_LEVEL"),
				Destination: &f.logLevel,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server (default)",
				Action: func(ctx context.Context, c *cli.Command) error { return serve(ctx, f) },
			},
			{
				Name:   "migrate",
				Usage:  "apply the PostgreSQL schema and exit",
				Action: func(ctx context.Context, c *cli.Command) error { return migrate(ctx, f) },
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'itemsvc --help' for usage", c.Args().First())
			}
			return serve(ctx, f)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the root logger.
func setup(f *flags) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("setup logger: %w", err)
	}
	logger = logger.With().Str("service", cfg.ServiceName).Logger()
	return cfg, logger, nil
}

// openStore connects to the configured backend and fails fast when it cannot
// be reached.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("could not connect to redis (%s): %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		return store.NewRedis(client), nil

	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.PostgresOptions{
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("could not connect to postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("connected to postgres")
		return pg, nil

	default:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
}

func serve(ctx context.Context, f *flags) error {
	cfg, logger, err := setup(f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger.With().Str("component", "store").Logger())
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	handler := api.New(api.Options{
		Store:        st,
		Metrics:      metrics.New(cfg.ServiceName),
		Logger:       logger.With().Str("component", "api").Logger(),
		Service:      cfg.ServiceName,
		Version:      cfg.Version,
		Environment:  cfg.Environment,
		Production:   cfg.Production(),
		APIKeys:      cfg.Keys(),
		RateLimit:    cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
		ReadyTimeout: cfg.ReadyTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	srvLogger := logger.With().Str("component", "server").Logger()
	errCh := make(chan error, 1)
	go func() {
		srvLogger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.StoreDriver).
			Str("environment", cfg.Environment).
			Msg("server is listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen: %w", err)
		}
	case <-ctx.Done():
	}
	srvLogger.Info().Msg("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	srvLogger.Info().Msg("server stopped")
	return nil
}

func migrate(ctx context.Context, f *flags) error {
	cfg, logger, err := setup(f)
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.StoreDriver)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.PostgresOptions{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("could not connect to postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Msg("schema is up to date")
	return nil
}
