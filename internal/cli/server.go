package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/config"
	"quiz-score-service/internal/infra/memory"
	"quiz-score-service/internal/infra/postgres"
	rediscache "quiz-score-service/internal/infra/redis"
	"quiz-score-service/internal/infra/sqlite"
	"quiz-score-service/internal/logger"
	"quiz-score-service/internal/metrics"
	transport "quiz-score-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the score service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	rec := metrics.New()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open score store", zap.String("driver", cfg.StorageDriver()), zap.Error(err))
		return err
	}
	defer closeStore()

	cacheTTL := config.Duration(cfg.Leaderboard.CacheTTL, 30*time.Second)
	var leaderboards app.LeaderboardCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// reads fall back to the store while redis is down
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		leaderboards = rediscache.NewLeaderboardCache(redisClient, store, cacheTTL, rec)
	} else {
		leaderboards = memory.NewLeaderboardCache(store, cacheTTL, rec)
	}

	service := app.NewRankingService(store, leaderboards, app.Limits{
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
	}, log, rec)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, transport.RouterOptions{
			Logger:         log,
			Metrics:        rec,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		}),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting score service",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.StorageDriver()),
			zap.Bool("redis_cache", cfg.Redis.Addr != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore builds the configured score store and returns a func releasing it.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (app.AttemptRepository, func(), error) {
	switch driver := cfg.StorageDriver(); driver {
	case config.DriverPostgres:
		if cfg.MigrateOnStart() {
			if err := runMigrations(ctx, cfg, log); err != nil {
				return nil, nil, err
			}
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewAttemptStore(pool), pool.Close, nil
	case config.DriverSQLite:
		store, err := sqlite.NewAttemptStore(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil
	case config.DriverMemory:
		log.Warn("using in-memory score store; attempts are lost on restart")
		return memory.NewAttemptStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}
