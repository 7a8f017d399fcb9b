package planner

import (
	"context"
	"fmt"
	"log/slog"

	"fame-flywheel/internal/metrics"
	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

// ParameterSelector picks the production parameters for the next job.
type ParameterSelector interface {
	SelectParameters(ctx context.Context) (models.ParameterCombination, string)
}

// Planner is the scheduling trigger: one run selects parameters and creates
// one new PENDING job.
type Planner struct {
	store  store.Store
	policy ParameterSelector
	log    *slog.Logger
}

func New(st store.Store, policy ParameterSelector, log *slog.Logger) *Planner {
	return &Planner{store: st, policy: policy, log: log}
}

func (p *Planner) RunOnce(ctx context.Context) error {
	combo, mode := p.policy.SelectParameters(ctx)
	job, err := p.store.CreateJob(ctx, combo)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	metrics.JobsPlanned.WithLabelValues(mode).Inc()
	p.log.Info("planner run complete",
		"key", job.Key,
		"mode", mode,
		"genre", combo.Genre,
		"style", combo.Style,
		"voice", combo.Voice)
	return nil
}
