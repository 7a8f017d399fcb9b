package feedback

import (
	"context"
	"fmt"
	"time"

	"fame-flywheel/internal/models"
)

// GainSource provides per-job windowed view gains. Both store backends
// implement it with a single declarative query.
type GainSource interface {
	WindowGains(ctx context.Context, start, end time.Duration) ([]models.WindowGain, error)
}

// Best describes the current winning arm.
type Best struct {
	Parameters   models.ParameterCombination `json:"parameters"`
	FameVelocity float64                     `json:"fame_velocity"`
	Jobs         int                         `json:"jobs"`
}

// BestSource yields the best-known combination, if any.
type BestSource interface {
	BestCombination(ctx context.Context) (Best, bool, error)
}

// Aggregator turns raw performance samples into fame velocity: the average
// view-count gain per parameter combination inside the post-upload window.
type Aggregator struct {
	source      GainSource
	windowStart time.Duration
	windowEnd   time.Duration
}

func NewAggregator(source GainSource, windowStart, windowEnd time.Duration) *Aggregator {
	return &Aggregator{source: source, windowStart: windowStart, windowEnd: windowEnd}
}

// BestCombination averages per-job gains by combination and returns the one
// with the highest average. ok is false when no combination has a qualifying
// job. The result is deterministic: gains arrive in job-key order, grouping
// preserves first-seen order, and ties keep the earlier combination.
func (a *Aggregator) BestCombination(ctx context.Context) (Best, bool, error) {
	gains, err := a.source.WindowGains(ctx, a.windowStart, a.windowEnd)
	if err != nil {
		return Best{}, false, fmt.Errorf("window gains: %w", err)
	}

	type bucket struct {
		sum  int64
		jobs int
	}
	order := make([]models.ParameterCombination, 0, len(gains))
	buckets := make(map[models.ParameterCombination]*bucket, len(gains))
	for _, g := range gains {
		b, ok := buckets[g.Parameters]
		if !ok {
			b = &bucket{}
			buckets[g.Parameters] = b
			order = append(order, g.Parameters)
		}
		b.sum += g.Gain
		b.jobs++
	}

	var best Best
	found := false
	for _, combo := range order {
		b := buckets[combo]
		velocity := float64(b.sum) / float64(b.jobs)
		if !found || velocity > best.FameVelocity {
			best = Best{Parameters: combo, FameVelocity: velocity, Jobs: b.jobs}
			found = true
		}
	}
	return best, found, nil
}

var _ BestSource = (*Aggregator)(nil)
