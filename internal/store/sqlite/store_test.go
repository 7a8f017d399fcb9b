package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestStore(t *testing.T, clk *fakeClock) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var testParams = models.ParameterCombination{Genre: "creepy pasta", Style: "anime", Voice: "en_US-vctk-low"}

func TestCreateAndGetJob(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, testParams, job.Parameters)
	assert.Nil(t, job.UploadTime)

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = st.GetJob(ctx, "v_0000000000_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNextPendingJobReturnsOldest(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	_, ok, err := st.NextPendingJob(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	got, ok, err := st.NextPendingJob(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Key, got.Key)
}

func TestClaimPendingJobNeverHandsOutSameJobTwice(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	a, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	clk.Advance(time.Second)
	b, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	first, ok, err := st.ClaimPendingJob(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Key, first.Key)
	assert.Equal(t, models.StatusCreating, first.Status)

	second, ok, err := st.ClaimPendingJob(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.Key, second.Key)

	_, ok, err = st.ClaimPendingJob(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatusWalksFullLifecycle(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusCreating, store.StatusUpdate{}))

	script := "a short story"
	hook := "a hook prompt"
	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusCreated, store.StatusUpdate{
		Script:     &script,
		HookPrompt: &hook,
	}))

	ext := "yt-abc123"
	clk.Advance(time.Hour)
	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusUploaded, store.StatusUpdate{
		ExternalID:  &ext,
		StampUpload: true,
	}))

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)
	require.NotNil(t, got.Script)
	assert.Equal(t, script, *got.Script)
	require.NotNil(t, got.HookPrompt)
	assert.Equal(t, hook, *got.HookPrompt)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, ext, *got.ExternalID)
	require.NotNil(t, got.UploadTime)
	assert.Equal(t, clk.Now().Unix(), got.UploadTime.Unix())

	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusAnalyzed, store.StatusUpdate{}))
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	// PENDING -> UPLOADED skips two states.
	err = st.UpdateStatus(ctx, job.Key, models.StatusUploaded, store.StatusUpdate{})
	var inv *store.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, models.StatusPending, inv.From)
	assert.Equal(t, models.StatusUploaded, inv.To)

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "failed transition must leave the row unchanged")
	assert.Nil(t, got.UploadTime)

	err = st.UpdateStatus(ctx, "v_0000000000_missing", models.StatusCreating, store.StatusUpdate{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.UpdateStatus(ctx, job.Key, models.StatusPending, store.StatusUpdate{})
	require.Error(t, err, "nothing transitions into the initial state")
}

func TestRecordSample(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	sample := models.PerformanceSample{
		JobKey:    job.Key,
		Timestamp: clk.Now(),
		Views:     100,
		Likes:     10,
		Comments:  2,
	}
	require.NoError(t, st.RecordSample(ctx, sample))

	// Same (job, timestamp) again is an idempotent no-op.
	sample.Views = 999
	require.NoError(t, st.RecordSample(ctx, sample))

	samples, err := st.SamplesForJob(ctx, job.Key)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int64(100), samples[0].Views)

	err = st.RecordSample(ctx, models.PerformanceSample{JobKey: "v_0000000000_missing", Timestamp: clk.Now()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// uploadJob drives a fresh job to UPLOADED at the clock's current time.
func uploadJob(t *testing.T, st *Store, clk *fakeClock, params models.ParameterCombination) models.Job {
	t.Helper()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusCreating, store.StatusUpdate{}))
	script := "s"
	hook := "h"
	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusCreated, store.StatusUpdate{Script: &script, HookPrompt: &hook}))
	ext := "yt-" + job.Key
	require.NoError(t, st.UpdateStatus(ctx, job.Key, models.StatusUploaded, store.StatusUpdate{ExternalID: &ext, StampUpload: true}))
	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	return got
}

func TestEligibleForTelemetry(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	// Uploaded eight days ago: outside the retention window.
	old := uploadJob(t, st, clk, testParams)
	clk.Advance(8 * 24 * time.Hour)

	fresh := uploadJob(t, st, clk, testParams)

	// Pending job and a job with no upload time never qualify.
	_, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	jobs, err := st.EligibleForTelemetry(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, fresh.Key, jobs[0].Key)

	// Promotion keeps the job eligible.
	require.NoError(t, st.UpdateStatus(ctx, fresh.Key, models.StatusAnalyzed, store.StatusUpdate{}))
	jobs, err = st.EligibleForTelemetry(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_ = old
}

func TestTimeSinceUpload(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	pending, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	_, err = st.TimeSinceUpload(ctx, pending.Key)
	assert.ErrorIs(t, err, store.ErrNoUploadTime)

	job := uploadJob(t, st, clk, testParams)
	clk.Advance(13 * time.Hour)

	age, err := st.TimeSinceUpload(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, 13*time.Hour, age)

	_, err = st.TimeSinceUpload(ctx, "v_0000000000_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func analyze(t *testing.T, st *Store, key string) {
	t.Helper()
	require.NoError(t, st.UpdateStatus(context.Background(), key, models.StatusAnalyzed, store.StatusUpdate{}))
}

func addSample(t *testing.T, st *Store, job models.Job, offset time.Duration, views int64) {
	t.Helper()
	require.NotNil(t, job.UploadTime)
	require.NoError(t, st.RecordSample(context.Background(), models.PerformanceSample{
		JobKey:    job.Key,
		Timestamp: job.UploadTime.Add(offset),
		Views:     views,
	}))
}

func TestWindowGains(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job := uploadJob(t, st, clk, testParams)
	addSample(t, st, job, 3000*time.Second, 5)    // before the window opens
	addSample(t, st, job, 8000*time.Second, 100)  // in window
	addSample(t, st, job, 20000*time.Second, 500) // in window
	addSample(t, st, job, 40000*time.Second, 900) // after the window closes
	analyze(t, st, job.Key)

	gains, err := st.WindowGains(ctx, 7200*time.Second, 36000*time.Second)
	require.NoError(t, err)
	require.Len(t, gains, 1)
	assert.Equal(t, job.Key, gains[0].JobKey)
	assert.Equal(t, testParams, gains[0].Parameters)
	assert.Equal(t, int64(400), gains[0].Gain, "out-of-window samples must not affect the gain")
}

func TestWindowGainsRequiresTwoSamplesAndAnalyzedStatus(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	// One sample only: not enough resolution to measure a gain.
	lonely := uploadJob(t, st, clk, testParams)
	addSample(t, st, lonely, 8000*time.Second, 100)
	analyze(t, st, lonely.Key)

	// Two samples but still UPLOADED.
	immature := uploadJob(t, st, clk, testParams)
	addSample(t, st, immature, 8000*time.Second, 100)
	addSample(t, st, immature, 20000*time.Second, 300)

	gains, err := st.WindowGains(ctx, 7200*time.Second, 36000*time.Second)
	require.NoError(t, err)
	assert.Empty(t, gains)
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job := uploadJob(t, st, clk, testParams)
	addSample(t, st, job, 7200*time.Second, 150)
	addSample(t, st, job, 36000*time.Second, 400)
	analyze(t, st, job.Key)

	gains, err := st.WindowGains(ctx, 7200*time.Second, 36000*time.Second)
	require.NoError(t, err)
	require.Len(t, gains, 1)
	assert.Equal(t, int64(250), gains[0].Gain)
}

func TestPendingDepth(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	n, err := st.PendingDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, testParams)
	require.NoError(t, err)

	n, err = st.PendingDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStuckCreating(t *testing.T) {
	clk := newClock()
	st := newTestStore(t, clk)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testParams)
	require.NoError(t, err)
	_, ok, err := st.ClaimPendingJob(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stuck, err := st.StuckCreating(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	clk.Advance(2 * time.Hour)
	stuck, err = st.StuckCreating(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, job.Key, stuck[0].Key)
}

func TestErrorsUnwrap(t *testing.T) {
	err := &store.InvalidTransitionError{Key: "k", From: "PENDING", To: "UPLOADED"}
	var inv *store.InvalidTransitionError
	assert.True(t, errors.As(error(err), &inv))
	assert.Contains(t, err.Error(), "PENDING -> UPLOADED")
}
