package planner

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store/sqlite"
)

type stubSelector struct {
	combo models.ParameterCombination
	mode  string
}

func (s *stubSelector) SelectParameters(context.Context) (models.ParameterCombination, string) {
	return s.combo, s.mode
}

func TestRunOnceCreatesPendingJob(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	combo := models.ParameterCombination{Genre: "mind-bending puzzle", Style: "pixel art", Voice: "en_US-kss-low"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pl := New(st, &stubSelector{combo: combo, mode: "explore"}, logger)

	require.NoError(t, pl.RunOnce(context.Background()))

	job, ok, err := st.NextPendingJob(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, combo, job.Parameters)
}
