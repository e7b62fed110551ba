package translate

import (
	"context"
	"fmt"
	"log/slog"
)

// step is one stage of a compound operation that spans dependent
// transactions. forward applies the stage; compensate undoes it.
type step struct {
	name       string
	forward    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSteps executes steps in order. If a forward fails, the compensations of
// the already-applied steps run in reverse order, then the original failure
// is returned. Compensation failures are logged but do not mask the original
// error.
func runSteps(ctx context.Context, steps []step) error {
	for i, s := range steps {
		if err := s.forward(ctx); err != nil {
			slog.Error("Compound operation step failed, rolling back", "step", s.name, "error", err)
			for j := i - 1; j >= 0; j-- {
				if steps[j].compensate == nil {
					continue
				}
				if cerr := steps[j].compensate(ctx); cerr != nil {
					slog.Error("Compensation failed", "step", steps[j].name, "error", cerr)
				}
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
