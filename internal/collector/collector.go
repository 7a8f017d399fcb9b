package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fame-flywheel/internal/lifecycle"
	"fame-flywheel/internal/metrics"
	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

// Stats is one point-in-time reading from the publishing platform.
type Stats struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// TelemetrySource fetches current stats for a published item, identified by
// the platform's own id. Implementations wrap the platform statistics API.
type TelemetrySource interface {
	Stats(ctx context.Context, externalID string) (Stats, error)
}

// Collector is the telemetry trigger: one run samples every job still inside
// the retention window and promotes the mature ones to ANALYZED. A failure
// on a single job skips that job for the round; only store failures abort
// the run.
type Collector struct {
	store     store.Store
	ctrl      *lifecycle.Controller
	source    TelemetrySource
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// New builds a collector. now is the injected clock; nil means time.Now.
func New(st store.Store, ctrl *lifecycle.Controller, source TelemetrySource, retention time.Duration, now func() time.Time, log *slog.Logger) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{store: st, ctrl: ctrl, source: source, retention: retention, now: now, log: log}
}

func (c *Collector) RunOnce(ctx context.Context) error {
	jobs, err := c.store.EligibleForTelemetry(ctx, c.retention)
	if err != nil {
		return fmt.Errorf("list eligible jobs: %w", err)
	}

	var sampled, promoted, skipped int
	for _, job := range jobs {
		if job.ExternalID == nil {
			c.log.Warn("job has no external id yet, skipping", "key", job.Key)
			skipped++
			metrics.TelemetrySkips.Inc()
			continue
		}

		stats, err := c.source.Stats(ctx, *job.ExternalID)
		if err != nil {
			c.log.Warn("stats fetch failed, skipping this round", "key", job.Key, "error", err)
			skipped++
			metrics.TelemetrySkips.Inc()
			continue
		}

		sample := models.PerformanceSample{
			JobKey:    job.Key,
			Timestamp: c.now().UTC(),
			Views:     stats.Views,
			Likes:     stats.Likes,
			Comments:  stats.Comments,
		}
		if err := c.store.RecordSample(ctx, sample); err != nil {
			c.log.Error("record sample failed", "key", job.Key, "error", err)
			skipped++
			continue
		}
		sampled++
		metrics.SamplesRecorded.Inc()

		if job.Status != models.StatusUploaded {
			continue
		}
		didPromote, err := c.ctrl.PromoteIfMature(ctx, job.Key)
		if err != nil {
			c.log.Error("promotion failed", "key", job.Key, "error", err)
			continue
		}
		if didPromote {
			promoted++
			metrics.JobsPromoted.Inc()
		}
	}

	c.log.Info("collector run complete",
		"eligible", len(jobs),
		"sampled", sampled,
		"promoted", promoted,
		"skipped", skipped)
	return nil
}
