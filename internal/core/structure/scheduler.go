package structure

import (
	"context"
	"time"

	"github.com/agenthands/argus/internal/logger"
)

// Scheduler runs a refresh on a fixed interval and whenever Trigger is called. Refreshes
// run one at a time on the scheduler goroutine; triggers arriving during a refresh collapse
// into one follow-up run.
type Scheduler struct {
	interval time.Duration
	refresh  func(context.Context) error
	trigger  chan struct{}
}

// NewScheduler builds a scheduler. A non-positive interval disables the timer and leaves
// only explicit triggers.
func NewScheduler(interval time.Duration, refresh func(context.Context) error) *Scheduler {
	return &Scheduler{
		interval: interval,
		refresh:  refresh,
		trigger:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-s.trigger:
		}
		if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Error("structural refresh failed", "err", err)
		}
	}
}
