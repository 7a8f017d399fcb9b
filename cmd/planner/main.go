package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"fame-flywheel/internal/catalog"
	"fame-flywheel/internal/config"
	"fame-flywheel/internal/feedback"
	"fame-flywheel/internal/logging"
	"fame-flywheel/internal/planner"
	"fame-flywheel/internal/policy"
	"fame-flywheel/internal/runner"
	"fame-flywheel/internal/store"
	"fame-flywheel/internal/store/postgres"
	"fame-flywheel/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("connect store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog", "error", err)
		os.Exit(1)
	}

	aggregator := feedback.NewAggregator(st, cfg.WindowStart, cfg.WindowEnd)
	var best feedback.BestSource = aggregator
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		best = feedback.NewCache(aggregator, client, cfg.CacheTTL, logger)
	}

	pol := policy.New(best, cat, cfg.ExploitThreshold, nil, logger)
	pl := planner.New(st, pol, logger)

	if err := runner.Run(ctx, cfg, logger, pl.RunOnce); err != nil {
		logger.Error("planner failed", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return postgres.New(ctx, cfg.PostgresDSN, nil)
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath, nil)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}
