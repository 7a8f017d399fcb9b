package lifecycle

import (
	"context"
	"errors"
	"time"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

// Controller enforces the job state machine. Every transition is a single
// validated store update; an attempt from the wrong source state fails with
// InvalidTransitionError and writes nothing.
type Controller struct {
	store    store.Store
	maturity time.Duration
}

// New builds a controller. maturity is how long after upload a job's
// telemetry is considered sufficient to analyze.
func New(st store.Store, maturity time.Duration) *Controller {
	return &Controller{store: st, maturity: maturity}
}

// Begin moves PENDING -> CREATING. Producers claiming from a shared backlog
// should prefer the store's atomic claim, which folds the pending lookup and
// this transition into one transaction.
func (c *Controller) Begin(ctx context.Context, key string) error {
	return c.store.UpdateStatus(ctx, key, models.StatusCreating, store.StatusUpdate{})
}

// Complete moves CREATING -> CREATED, attaching the generated artifacts.
func (c *Controller) Complete(ctx context.Context, key, script, hookPrompt string) error {
	return c.store.UpdateStatus(ctx, key, models.StatusCreated, store.StatusUpdate{
		Script:     &script,
		HookPrompt: &hookPrompt,
	})
}

// Fail moves CREATING -> FAILED. Any production error must route here so the
// job does not sit in CREATING forever.
func (c *Controller) Fail(ctx context.Context, key string) error {
	return c.store.UpdateStatus(ctx, key, models.StatusFailed, store.StatusUpdate{})
}

// MarkUploaded moves CREATED -> UPLOADED, attaching the platform identifier
// issued by the publisher and stamping the upload time.
func (c *Controller) MarkUploaded(ctx context.Context, key, externalID string) error {
	return c.store.UpdateStatus(ctx, key, models.StatusUploaded, store.StatusUpdate{
		ExternalID:  &externalID,
		StampUpload: true,
	})
}

// PromoteIfMature moves UPLOADED -> ANALYZED once the maturity threshold has
// elapsed since upload. It is idempotent: an already-ANALYZED job (including
// one promoted concurrently by another collector) is a no-op, and an
// immature job is left alone. promoted reports whether this call did the
// promotion.
func (c *Controller) PromoteIfMature(ctx context.Context, key string) (bool, error) {
	job, err := c.store.GetJob(ctx, key)
	if err != nil {
		return false, err
	}
	switch job.Status {
	case models.StatusAnalyzed:
		return false, nil
	case models.StatusUploaded:
	default:
		return false, &store.InvalidTransitionError{Key: key, From: job.Status, To: models.StatusAnalyzed}
	}

	age, err := c.store.TimeSinceUpload(ctx, key)
	if err != nil {
		return false, err
	}
	if age < c.maturity {
		return false, nil
	}

	if err := c.store.UpdateStatus(ctx, key, models.StatusAnalyzed, store.StatusUpdate{}); err != nil {
		var inv *store.InvalidTransitionError
		if errors.As(err, &inv) && inv.From == models.StatusAnalyzed {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
