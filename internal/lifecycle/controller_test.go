package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
	"fame-flywheel/internal/store/sqlite"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time         { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) (*Controller, *sqlite.Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 12*time.Hour), st, clk
}

var params = models.ParameterCombination{Genre: "creepy pasta", Style: "anime", Voice: "en_US-vctk-low"}

func TestHappyPathToUploaded(t *testing.T) {
	ctrl, st, _ := newFixture(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)

	require.NoError(t, ctrl.Begin(ctx, job.Key))
	require.NoError(t, ctrl.Complete(ctx, job.Key, "a script", "a hook"))
	require.NoError(t, ctrl.MarkUploaded(ctx, job.Key, "yt-xyz"))

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, "yt-xyz", *got.ExternalID)
	require.NotNil(t, got.UploadTime)
}

func TestFailPath(t *testing.T) {
	ctrl, st, _ := newFixture(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)

	require.NoError(t, ctrl.Begin(ctx, job.Key))
	require.NoError(t, ctrl.Fail(ctx, job.Key))

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	// FAILED is terminal.
	err = ctrl.Begin(ctx, job.Key)
	var inv *store.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
}

func TestBeginTwiceFails(t *testing.T) {
	ctrl, st, _ := newFixture(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)
	require.NoError(t, ctrl.Begin(ctx, job.Key))

	err = ctrl.Begin(ctx, job.Key)
	var inv *store.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, models.StatusCreating, inv.From)
}

func TestPromoteIfMature(t *testing.T) {
	ctrl, st, clk := newFixture(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)
	require.NoError(t, ctrl.Begin(ctx, job.Key))
	require.NoError(t, ctrl.Complete(ctx, job.Key, "s", "h"))
	require.NoError(t, ctrl.MarkUploaded(ctx, job.Key, "yt-xyz"))

	promoted, err := ctrl.PromoteIfMature(ctx, job.Key)
	require.NoError(t, err)
	assert.False(t, promoted, "fresh upload must not be promoted")

	clk.Advance(11 * time.Hour)
	promoted, err = ctrl.PromoteIfMature(ctx, job.Key)
	require.NoError(t, err)
	assert.False(t, promoted)

	clk.Advance(2 * time.Hour)
	promoted, err = ctrl.PromoteIfMature(ctx, job.Key)
	require.NoError(t, err)
	assert.True(t, promoted)

	got, err := st.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, got.Status)

	// Second pass over an already-ANALYZED job is a quiet no-op.
	promoted, err = ctrl.PromoteIfMature(ctx, job.Key)
	require.NoError(t, err)
	assert.False(t, promoted)
}

func TestPromoteIfMatureRejectsWrongState(t *testing.T) {
	ctrl, st, _ := newFixture(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, params)
	require.NoError(t, err)

	_, err = ctrl.PromoteIfMature(ctx, job.Key)
	var inv *store.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, models.StatusPending, inv.From)

	_, err = ctrl.PromoteIfMature(ctx, "v_0000000000_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
