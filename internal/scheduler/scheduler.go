// Package scheduler advances investigations one step per tick. A tick claims
// the row lock, runs at most one step and persists its outputs under the lock
// token. There is no daemon; callers drive progress by calling Tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/store"
)

const (
	msgStarted   = "Investigation started"
	msgDone      = "Investigation complete"
	msgRunning   = "Running"
	msgCompleted = "Completed"
)

// Runners resolves the implementation of a step.
type Runners interface {
	Runner(step schemas.StepKey) (schemas.StepRunner, bool)
}

// Scheduler runs ticks against a store.
type Scheduler struct {
	store   schemas.Store
	runners Runners
	cfg     config.SchedulerConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	now      func() time.Time
	newToken func() string
}

// New creates a Scheduler. metrics may be nil.
func New(st schemas.Store, runners Runners, cfg config.SchedulerConfig, metrics *observability.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    st,
		runners:  runners,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
		newToken: uuid.NewString,
	}
}

// Start moves a queued investigation to processing. Calling it again, or on
// an investigation that already advanced, changes nothing.
func (s *Scheduler) Start(ctx context.Context, id string) error {
	moved, err := s.store.MarkProcessing(ctx, id, startedEvent(id))
	if err != nil {
		return fmt.Errorf("failed to start investigation %s: %w", id, err)
	}
	if moved {
		s.logger.Info("Investigation started", observability.Investigation(id))
	}
	return nil
}

// Tick performs at most one step of the investigation.
func (s *Scheduler) Tick(ctx context.Context, id string) (schemas.TickResult, error) {
	log := s.logger.With(observability.Investigation(id))

	inv, err := s.store.GetInvestigation(ctx, id)
	if err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to load investigation: %w", err)
	}
	if inv.Status.IsTerminal() {
		s.metrics.Tick(observability.TickNoop)
		return schemas.TickResult{Status: inv.Status}, nil
	}

	token := s.newToken()
	won, err := s.store.ClaimLock(ctx, id, token, s.now(), s.cfg.LockTTL, s.cfg.StaleAfter)
	if err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to claim lock: %w", err)
	}
	if !won {
		log.Debug("Lock held by another tick, skipping")
		s.metrics.Tick(observability.TickSkipped)
		return schemas.TickResult{Skipped: true}, nil
	}

	res, err := s.tickLocked(ctx, inv, token, log)
	if errors.Is(err, store.ErrLockLost) {
		log.Warn("Lock lost while persisting, dropping results")
		s.metrics.Tick(observability.TickLockLost)
		return schemas.TickResult{Skipped: true}, nil
	}
	if err != nil {
		// Leave the lock to expire; a later tick reclaims it.
		return schemas.TickResult{}, err
	}
	return res, nil
}

func (s *Scheduler) tickLocked(ctx context.Context, inv *schemas.Investigation, token string, log *zap.Logger) (schemas.TickResult, error) {
	id := inv.ID
	if _, err := s.store.MarkProcessing(ctx, id, startedEvent(id)); err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to mark processing: %w", err)
	}
	inv.Status = schemas.StatusProcessing

	window := s.cfg.EventWindow
	if window <= 0 {
		window = 500
	}
	events, err := s.store.RecentEvents(ctx, id, window)
	if err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to read events: %w", err)
	}

	step, ok := schemas.NextStep(events)
	if !ok {
		done := schemas.NewEvent(id, schemas.StepPipeline, schemas.EventCompleted, 100, msgDone)
		if err := s.store.CompleteInvestigation(ctx, id, token, done); err != nil {
			return schemas.TickResult{}, fmt.Errorf("failed to complete investigation: %w", err)
		}
		log.Info("Investigation completed")
		s.metrics.Tick(observability.TickCompleted)
		return schemas.TickResult{Status: schemas.StatusCompleted}, nil
	}

	log = log.With(observability.Step(step))
	runner, ok := s.runners.Runner(step)
	if !ok {
		return schemas.TickResult{}, fmt.Errorf("no runner registered for step %q", step)
	}

	if _, err := s.store.AppendEvent(ctx, schemas.NewEvent(id, step, schemas.EventStarted, startPercent(step), msgRunning)); err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to append started event: %w", err)
	}

	started := time.Now()
	out, runErr := s.run(ctx, runner, inv)
	took := time.Since(started)

	if runErr != nil {
		if step.LoadBearing() {
			failed := schemas.NewEvent(id, step, schemas.EventFailed, startPercent(step), runErr.Error())
			if err := s.store.FailInvestigation(ctx, id, token, failed); err != nil {
				return schemas.TickResult{}, fmt.Errorf("failed to record failure: %w", err)
			}
			log.Error("Step failed, investigation failed", zap.Error(runErr), zap.Duration("took", took))
			s.metrics.Step(string(step), string(schemas.EventFailed), took)
			s.metrics.Tick(observability.TickFailed)
			return schemas.TickResult{Error: runErr.Error(), Step: step}, nil
		}

		msg := "failed (continuing): " + runErr.Error()
		failed := schemas.NewEvent(id, step, schemas.EventFailed, step.Percent(), msg)
		if err := s.store.PersistStep(ctx, id, token, schemas.StepOutput{Step: step}, failed); err != nil {
			return schemas.TickResult{}, fmt.Errorf("failed to record step failure: %w", err)
		}
		log.Warn("Best-effort step failed, continuing", zap.Error(runErr), zap.Duration("took", took))
		s.metrics.Step(string(step), string(schemas.EventFailed), took)
		return s.finish(ctx, id, token, step, log), nil
	}

	msg := out.Message
	if msg == "" {
		msg = msgCompleted
	}
	out.Step = step
	completion := schemas.NewEvent(id, step, schemas.EventCompleted, step.Percent(), msg)
	if err := s.store.PersistStep(ctx, id, token, out, completion); err != nil {
		return schemas.TickResult{}, fmt.Errorf("failed to persist step %s: %w", step, err)
	}
	log.Info("Step completed", zap.Duration("took", took), zap.Int("notes", len(out.Notes)))
	s.metrics.Step(string(step), string(schemas.EventCompleted), took)
	return s.finish(ctx, id, token, step, log), nil
}

// finish releases the lock after a step was persisted.
func (s *Scheduler) finish(ctx context.Context, id, token string, step schemas.StepKey, log *zap.Logger) schemas.TickResult {
	released, err := s.store.ReleaseLock(ctx, id, token)
	switch {
	case err != nil:
		log.Warn("Failed to release lock, it will expire", zap.Error(err))
	case !released:
		log.Warn("Lock was taken over before release")
	}
	s.metrics.Tick(observability.TickRan)
	return schemas.TickResult{Status: schemas.StatusProcessing, RanStep: step}
}

// run executes a runner under the step timeout and turns a panic into an error.
func (s *Scheduler) run(ctx context.Context, runner schemas.StepRunner, inv *schemas.Investigation) (out schemas.StepOutput, err error) {
	if s.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = schemas.StepOutput{}, fmt.Errorf("step panicked: %v", r)
		}
	}()
	return runner.Run(ctx, inv)
}

func startedEvent(id string) schemas.ProgressEvent {
	return schemas.NewEvent(id, schemas.StepPipeline, schemas.EventStarted, 0, msgStarted)
}

// startPercent is the progress reached before step runs.
func startPercent(step schemas.StepKey) int {
	prev := 0
	for _, k := range schemas.StepOrder {
		if k == step {
			return prev
		}
		prev = k.Percent()
	}
	return prev
}
