package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	api "fame-flywheel/internal/api"
	"fame-flywheel/internal/config"
	"fame-flywheel/internal/feedback"
	"fame-flywheel/internal/lifecycle"
	"fame-flywheel/internal/logging"
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

	ctrl := lifecycle.New(st, cfg.Maturity)
	server := api.New(cfg, st, ctrl, best)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("ops api listening", "port", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
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
