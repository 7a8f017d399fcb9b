package store

import (
	"context"
	"time"

	"fame-flywheel/internal/models"
)

// StatusUpdate carries the optional column writes that ride along with a
// status transition. Nil fields are left untouched.
type StatusUpdate struct {
	Script     *string
	HookPrompt *string
	ExternalID *string
	// StampUpload records the store clock as the job's upload time. Set by
	// the CREATED -> UPLOADED transition only.
	StampUpload bool
}

// Store is the single source of truth for jobs and performance samples.
// All other components read and write exclusively through this contract;
// none of them cache job state across invocations.
type Store interface {
	// CreateJob inserts a new PENDING job with a fresh unique key.
	CreateJob(ctx context.Context, params models.ParameterCombination) (models.Job, error)

	// GetJob fetches a job by key, or ErrNotFound.
	GetJob(ctx context.Context, key string) (models.Job, error)

	// NextPendingJob returns the oldest PENDING job by key order without
	// claiming it. ok is false when the backlog is empty.
	NextPendingJob(ctx context.Context) (models.Job, bool, error)

	// ClaimPendingJob atomically moves the oldest PENDING job to CREATING
	// and returns it. Two concurrent claimers never receive the same job.
	ClaimPendingJob(ctx context.Context) (models.Job, bool, error)

	// UpdateStatus applies a single validated transition. The update is a
	// compare-and-swap against the transition's unique source status; an
	// attempt from any other state fails with InvalidTransitionError and
	// leaves the row unchanged.
	UpdateStatus(ctx context.Context, key, to string, upd StatusUpdate) error

	// RecordSample appends one telemetry observation. ErrNotFound if the
	// job does not exist; a duplicate (job, timestamp) pair is ignored so
	// racing collectors stay idempotent.
	RecordSample(ctx context.Context, sample models.PerformanceSample) error

	// SamplesForJob returns a job's samples ordered by timestamp.
	SamplesForJob(ctx context.Context, key string) ([]models.PerformanceSample, error)

	// EligibleForTelemetry lists UPLOADED and ANALYZED jobs whose upload
	// time is within maxAge of now.
	EligibleForTelemetry(ctx context.Context, maxAge time.Duration) ([]models.Job, error)

	// TimeSinceUpload reports how long ago the job was uploaded.
	// ErrNoUploadTime if it has not been uploaded yet.
	TimeSinceUpload(ctx context.Context, key string) (time.Duration, error)

	// WindowGains computes, for every ANALYZED job with at least two
	// samples in [uploadTime+start, uploadTime+end], the max-min view gain
	// inside that window, ordered by job key.
	WindowGains(ctx context.Context, start, end time.Duration) ([]models.WindowGain, error)

	// PendingDepth counts PENDING jobs.
	PendingDepth(ctx context.Context) (int64, error)

	// StuckCreating lists jobs sitting in CREATING longer than olderThan,
	// for operator inspection. There is no automatic reaper.
	StuckCreating(ctx context.Context, olderThan time.Duration) ([]models.Job, error)

	Close() error
}
