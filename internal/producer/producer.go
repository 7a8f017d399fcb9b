package producer

import (
	"context"
	"fmt"
	"log/slog"

	"fame-flywheel/internal/lifecycle"
	"fame-flywheel/internal/metrics"
	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

// Artifacts are the generator's outputs attached to a job on completion.
type Artifacts struct {
	Script     string   `json:"script"`
	HookPrompt string   `json:"hook_prompt"`
	MediaPaths []string `json:"media_paths"`
}

// Generator produces the content for one claimed job. Implementations live
// outside this module (model inference and media assembly).
type Generator interface {
	Generate(ctx context.Context, job models.Job) (Artifacts, error)
}

// Producer is the production trigger: one run claims the oldest pending job,
// hands it to the generator, and records the outcome.
type Producer struct {
	store store.Store
	ctrl  *lifecycle.Controller
	gen   Generator
	log   *slog.Logger
}

func New(st store.Store, ctrl *lifecycle.Controller, gen Generator, log *slog.Logger) *Producer {
	return &Producer{store: st, ctrl: ctrl, gen: gen, log: log}
}

func (p *Producer) RunOnce(ctx context.Context) error {
	if depth, err := p.store.PendingDepth(ctx); err == nil {
		metrics.PendingDepth.Set(float64(depth))
	}

	job, ok, err := p.store.ClaimPendingJob(ctx)
	if err != nil {
		return fmt.Errorf("claim pending job: %w", err)
	}
	if !ok {
		p.log.Info("producer run complete", "claimed", 0)
		return nil
	}

	artifacts, genErr := p.gen.Generate(ctx, job)
	if genErr != nil {
		// Generator failure is a job failure, not a run failure: the job
		// routes to FAILED and the trigger exits clean.
		metrics.JobsFailed.Inc()
		p.log.Error("generation failed", "key", job.Key, "error", genErr)
		if err := p.ctrl.Fail(ctx, job.Key); err != nil {
			return fmt.Errorf("mark job %s failed: %w", job.Key, err)
		}
		return nil
	}

	if err := p.ctrl.Complete(ctx, job.Key, artifacts.Script, artifacts.HookPrompt); err != nil {
		return fmt.Errorf("complete job %s: %w", job.Key, err)
	}
	metrics.JobsProduced.Inc()
	p.log.Info("producer run complete",
		"claimed", 1,
		"key", job.Key,
		"genre", job.Parameters.Genre,
		"media", len(artifacts.MediaPaths))
	return nil
}
