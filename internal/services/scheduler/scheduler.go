// Package scheduler triggers pipeline runs from a backup and an optional prune cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

// PollInterval is how often the wall clock is checked against the next trigger.
const PollInterval = 10 * time.Second

// State is the scheduler state.
type State string

// Scheduler states.
const (
	StateWaiting       State = "WAITING"
	StateRunningBackup State = "RUNNING_BACKUP"
	StateRunningPrune  State = "RUNNING_PRUNE"
)

// Runner executes the pipeline runs the scheduler triggers.
type Runner interface {
	Run(ctx context.Context, opts models.RunOptions) error
	Prune(ctx context.Context) error
}

// Trigger is the next planned run.
type Trigger struct {
	Kind models.RunKind
	At   time.Time
}

// Scheduler runs the pipeline on the backup schedule and prunes on the prune schedule.
type Scheduler struct {
	backup *ScheduleSet
	prune  *ScheduleSet // nil: every backup run also prunes
	runner Runner
	clock  clock.Clock
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// New creates a scheduler on the wall clock. prune may be nil.
func New(logger zerolog.Logger, runner Runner, backup, prune *ScheduleSet) *Scheduler {
	return NewWithClock(logger, runner, backup, prune, clock.WallClock)
}

// NewWithClock creates a scheduler with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, runner Runner, backup, prune *ScheduleSet, clk clock.Clock) *Scheduler {
	return &Scheduler{
		backup: backup,
		prune:  prune,
		runner: runner,
		clock:  clk,
		logger: logger,
		state:  StateWaiting,
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Next plans the run following now. A prune-only run is chosen only when the
// prune schedule fires strictly before the backup schedule.
func (s *Scheduler) Next(now time.Time) Trigger {
	nextBackup := s.backup.Next(now)
	if s.prune != nil {
		if nextPrune := s.prune.Next(now); !nextPrune.IsZero() && nextPrune.Before(nextBackup) {
			return Trigger{Kind: models.RunPrune, At: nextPrune}
		}
	}
	return Trigger{Kind: models.RunBackup, At: nextBackup}
}

// Run loops until ctx is cancelled. Failed runs are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Strs("backup", s.backup.Expressions()).
		Strs("prune", s.pruneExpressions()).
		Msg("scheduler started")

	for {
		s.setState(StateWaiting)
		trigger := s.Next(s.clock.Now())
		s.logger.Info().
			Str("kind", string(trigger.Kind)).
			Time("at", trigger.At).
			Msg("next run scheduled")

		if !s.waitUntil(ctx, trigger.At) {
			s.logger.Info().Msg("scheduler stopped")
			return nil
		}

		s.execute(ctx, trigger.Kind)

		if ctx.Err() != nil {
			s.logger.Info().Msg("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) pruneExpressions() []string {
	if s.prune == nil {
		return nil
	}
	return s.prune.Expressions()
}

// waitUntil polls the clock until at is reached. It returns false once ctx is done.
func (s *Scheduler) waitUntil(ctx context.Context, at time.Time) bool {
	for s.clock.Now().Before(at) {
		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(PollInterval):
		}
	}
	return ctx.Err() == nil
}

func (s *Scheduler) execute(ctx context.Context, kind models.RunKind) {
	start := s.clock.Now()
	err := s.safeRun(ctx, kind)
	logger := s.logger.With().Str("kind", string(kind)).Dur("duration", s.clock.Now().Sub(start)).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	logger.Info().Msg("scheduled run finished")
}

func (s *Scheduler) safeRun(ctx context.Context, kind models.RunKind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s run: %v", kind, r)
		}
	}()

	if kind == models.RunPrune {
		s.setState(StateRunningPrune)
		return s.runner.Prune(ctx)
	}

	s.setState(StateRunningBackup)
	return s.runner.Run(ctx, models.RunOptions{Prune: s.prune == nil})
}
