package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"fame-flywheel/internal/config"
	"fame-flywheel/internal/lifecycle"
	"fame-flywheel/internal/logging"
	"fame-flywheel/internal/producer"
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

	if cfg.GeneratorCmd == "" {
		logger.Error("GENERATOR_CMD is required")
		os.Exit(1)
	}

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

	ctrl := lifecycle.New(st, cfg.Maturity)
	gen := &producer.ExecGenerator{Command: strings.Fields(cfg.GeneratorCmd)}
	prod := producer.New(st, ctrl, gen, logger)

	if err := runner.Run(ctx, cfg, logger, prod.RunOnce); err != nil {
		logger.Error("producer failed", "error", err)
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
