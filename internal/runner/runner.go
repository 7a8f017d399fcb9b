package runner

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"fame-flywheel/internal/config"
	"fame-flywheel/internal/metrics"
)

// Run executes a trigger. With no poll interval configured it runs once and
// returns (cron mode, matching the original deployment). With an interval it
// loops until the context is cancelled, serving /metrics on the side, and a
// failed round is logged and retried on the next tick.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger, fn func(context.Context) error) error {
	if cfg.PollInterval <= 0 {
		return fn(ctx)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			log.Error("trigger run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
