package service

import (
	"context"
	"log"

	"geofleet/api/internal/apierr"
)

// sagaStep is one forward action with its undo. Compensation runs only
// for steps that completed.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. On failure the completed steps are
// compensated in reverse; a compensation failure leaves the system
// partially rolled back and is reported as such.
func runSaga(ctx context.Context, steps []sagaStep) error {
	for i, step := range steps {
		err := step.run(ctx)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if steps[j].compensate == nil {
				continue
			}
			if cerr := steps[j].compensate(ctx); cerr != nil {
				log.Printf("[Saga] Compensation %s failed: %v", steps[j].name, cerr)
				return apierr.Wrap(apierr.CodePartialRollback, err)
			}
		}
		return err
	}
	return nil
}
