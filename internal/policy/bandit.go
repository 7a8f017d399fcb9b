package policy

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"fame-flywheel/internal/catalog"
	"fame-flywheel/internal/feedback"
	"fame-flywheel/internal/models"
)

// Selection modes reported alongside the chosen combination.
const (
	ModeExploit = "exploit"
	ModeExplore = "explore"
)

// Policy implements the explore/exploit split over parameter combinations.
type Policy struct {
	source    feedback.BestSource
	catalog   *catalog.Catalog
	threshold float64
	rng       *rand.Rand
	log       *slog.Logger
}

// New builds a policy. threshold is the exploit probability; rng may be nil,
// in which case a time-seeded source is used.
func New(source feedback.BestSource, cat *catalog.Catalog, threshold float64, rng *rand.Rand, log *slog.Logger) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{source: source, catalog: cat, threshold: threshold, rng: rng, log: log}
}

// SelectParameters picks the next combination. It never fails: when the
// aggregation is unavailable or has no winner yet, it degrades to
// exploration, because skipping a scheduling round is worse than trying a
// random arm.
func (p *Policy) SelectParameters(ctx context.Context) (models.ParameterCombination, string) {
	r := p.rng.Float64()

	best, found, err := p.source.BestCombination(ctx)
	if err != nil {
		p.log.Warn("aggregation unavailable, exploring instead", "error", err)
		found = false
	}

	if found && r < p.threshold {
		p.log.Info("exploiting best-known combination",
			"genre", best.Parameters.Genre,
			"fame_velocity", best.FameVelocity,
			"jobs", best.Jobs)
		return best.Parameters, ModeExploit
	}

	combo := p.catalog.Sample(p.rng)
	p.log.Info("exploring new combination", "genre", combo.Genre, "style", combo.Style, "voice", combo.Voice)
	return combo, ModeExplore
}
