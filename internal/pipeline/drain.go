package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// DrainController repeatedly triggers batch cycles until the backlog is
// exhausted or the iteration cap is reached. Cycles are strictly sequential:
// each one is waited to completion before the next is requested.
type DrainController struct {
	pipeline      *Pipeline
	reprocessor   Reprocessor
	maxIterations int
	log           zerolog.Logger
}

// NewDrainController creates a controller over the given pipeline.
// maxIterations is the safety cap on cycles per drain.
func NewDrainController(p *Pipeline, reprocessor Reprocessor, maxIterations int, log zerolog.Logger) *DrainController {
	return &DrainController{
		pipeline:      p,
		reprocessor:   reprocessor,
		maxIterations: maxIterations,
		log:           log,
	}
}

// RunCycle triggers a single batch cycle.
func (d *DrainController) RunCycle(ctx context.Context) (*CycleResult, error) {
	return d.pipeline.RunCycle(ctx)
}

// Drain runs cycles until one reports an empty backlog or zero newly
// processed records, or the iteration cap is hit. A cycle error stops the
// drain; totals for completed cycles are still returned alongside it.
func (d *DrainController) Drain(ctx context.Context) (*DrainResult, error) {
	result := &DrainResult{}

	for i := 0; i < d.maxIterations; i++ {
		cycle, err := d.pipeline.RunCycle(ctx)
		if err != nil {
			return result, err
		}

		result.Cycles++
		result.Processed += cycle.Processed
		result.Deleted += cycle.Deleted
		result.Errored += cycle.Errored

		if cycle.Empty {
			d.log.Info().Int("cycles", result.Cycles).Msg("Backlog empty, drain complete")
			return result, nil
		}
		if cycle.newlyProcessed() == 0 {
			d.log.Info().Int("cycles", result.Cycles).Msg("Cycle made no progress, stopping drain")
			return result, nil
		}
	}

	d.log.Warn().
		Int("max_iterations", d.maxIterations).
		Msg("Drain hit iteration cap with backlog remaining")
	return result, nil
}

// Reprocess discards all canonical rows for the user and resets their
// non-pending raw records back to pending. Draining afterwards replays the
// user's full history through the pipeline.
func (d *DrainController) Reprocess(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("Reprocess: user id is required")
	}

	if err := d.reprocessor.ReprocessUser(ctx, userID); err != nil {
		return &PersistenceError{Op: "reprocess user " + userID, Err: err}
	}

	d.log.Info().Str("user_id", userID).Msg("User reset for reprocessing")
	return nil
}
