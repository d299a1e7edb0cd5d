package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Finalizer is the part of the engine the scheduler drives.
type Finalizer interface {
	NextDeadline(ctx context.Context) (time.Time, bool, error)
	FinalizeDue(ctx context.Context) (int, error)
}

type Config struct {
	// IdlePoll bounds every sleep so that sessions activated by other
	// instances are picked up.
	IdlePoll   time.Duration
	MaxBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdlePoll:   5 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Scheduler sleeps until the nearest session deadline and finalizes
// whatever is due when it wakes up. It keeps no state besides the next
// deadline, which is re-read from the store on every iteration.
type Scheduler struct {
	finalizer Finalizer
	clock     clockwork.Clock
	cfg       Config
	logger    *zap.Logger
	wakeCh    chan struct{}
}

func New(finalizer Finalizer, clock clockwork.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultConfig().IdlePoll
	}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}

	return &Scheduler{
		finalizer: finalizer,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Wake makes the loop re-read the next deadline without waiting for the
// current sleep to end. It never blocks.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. Sessions that became overdue while
// no scheduler was running are finalized on the first iteration.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("idle_poll", s.cfg.IdlePoll))

	failures := 0

	for {
		select {
		case <-s.wakeCh:
		default:
		}

		wait, err := s.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			failures++
			wait = s.backoff(failures)
			s.logger.Error(
				"scheduler iteration failed",
				zap.Int("failures", failures),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		} else {
			failures = 0
		}

		timer := s.clock.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler shutting down")
			return nil
		case <-timer.Chan():
		case <-s.wakeCh:
			timer.Stop()
			s.logger.Debug("scheduler woken up")
		}
	}
}

// tick finalizes due sessions and returns how long to sleep.
func (s *Scheduler) tick(ctx context.Context) (time.Duration, error) {
	n, err := s.finalizer.FinalizeDue(ctx)
	if n > 0 {
		s.logger.Info("finalized due sessions", zap.Int("count", n))
	}
	if err != nil {
		return 0, err
	}

	deadline, ok, err := s.finalizer.NextDeadline(ctx)
	if err != nil {
		return 0, err
	}

	if !ok {
		return s.cfg.IdlePoll, nil
	}

	wait := s.clock.Until(deadline)
	switch {
	case wait < 0:
		wait = 0
	case wait > s.cfg.IdlePoll:
		wait = s.cfg.IdlePoll
	}

	return wait, nil
}

func (s *Scheduler) backoff(failures int) time.Duration {
	wait := time.Second << min(failures-1, 10)
	if wait > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}

	return wait
}
