// Command siteauth serves the site's authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/internal/audit"
	"github.com/MrEthical07/siteauth/internal/config"
	"github.com/MrEthical07/siteauth/internal/httpapi"
	"github.com/MrEthical07/siteauth/internal/logging"
	"github.com/MrEthical07/siteauth/internal/mailer"
	"github.com/MrEthical07/siteauth/internal/userstore"
	"github.com/MrEthical07/siteauth/metrics/export/prometheus"
)

// Set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}, version)
	log.Info("starting siteauth", "version", version, "env", cfg.Env)

	engineCfg, err := cfg.Siteauth()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	db, err := userstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if cfg.MigrateOnStart {
		if err := userstore.Migrate(ctx, db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			log.Error("error closing redis", "error", closeErr)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	engine, err := siteauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(userstore.NewPostgresStore(db)).
		WithMailer(mailer.NewLogMailer(log, cfg.Env == "development")).
		WithLogger(log).
		WithAuditSink(audit.NewSlogSink(log)).
		Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	srv, err := httpapi.New(httpapi.Deps{
		Addr:    cfg.HTTPAddr,
		Engine:  engine,
		Logger:  log,
		Metrics: prometheus.NewExporter(engine).Handler(),
		Ready:   db.PingContext,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := srv.Close(); err != nil {
		log.Error("error stopping http server", "error", err)
	}
	return nil
}
