// Package saga runs an ordered list of steps spanning stores that cannot
// share a transaction. When a step fails, the compensations of the steps
// that already completed run in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Step is a forward action and the action that undoes it. Compensate may be nil.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError reports which step failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga is a named sequence of steps
type Saga struct {
	name   string
	steps  []Step
	logger *logger.Logger
}

// New creates an empty saga
func New(name string, log *logger.Logger) *Saga {
	return &Saga{name: name, logger: log}
}

// Add appends a step
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Run executes the steps in order. On failure it compensates the completed
// steps in reverse and returns a *StepError wrapping the original error.
// Compensation failures are logged and never replace the original error.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			s.compensate(ctx, i-1, step.Name, err)
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, from int, failed string, cause error) {
	log := s.logger.WithContext(ctx)
	// compensations must run even if the request was cancelled
	ctx = context.WithoutCancel(ctx)

	for i := from; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			log.Error("saga compensation failed",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.String("failed_step", failed),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
			continue
		}
		log.Debug("saga step compensated",
			zap.String("saga", s.name),
			zap.String("step", step.Name),
		)
	}
}

// FailedStep returns the name of the step that failed, if err came from Run
func FailedStep(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	return "", false
}
