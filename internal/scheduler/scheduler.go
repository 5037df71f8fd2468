package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"datasync/internal/observability"
)

// TickFunc performs one scheduled sync.
type TickFunc func(ctx context.Context)

// State reports whether ticks are scheduled and how often.
type State struct {
	Running  bool `json:"running"`
	Interval int  `json:"interval"` // in units, minutes by default
}

// Scheduler fires TickFunc every interval. At most one timer is live.
type Scheduler struct {
	tick   TickFunc
	unit   time.Duration
	logger *observability.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithUnit sets the length of one interval unit.
func WithUnit(unit time.Duration) Option {
	return func(s *Scheduler) {
		if unit > 0 {
			s.unit = unit
		}
	}
}

// New creates a stopped scheduler.
func New(tick TickFunc, logger *observability.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Scheduler{
		tick:   tick,
		unit:   time.Minute,
		logger: logger.WithField("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces any running timer with one firing every interval units.
// A non-positive interval, or one too long to represent as a duration,
// leaves the scheduler stopped.
func (s *Scheduler) Start(interval int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if interval <= 0 {
		return
	}
	if int64(interval) > math.MaxInt64/int64(s.unit) {
		s.logger.WarnWithFields("Auto-sync interval out of range, schedule stopped", map[string]interface{}{
			"interval": interval,
			"unit":     s.unit.String(),
		})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.interval = interval

	ticker := time.NewTicker(time.Duration(interval) * s.unit)
	go s.loop(ctx, ticker)

	s.logger.InfoWithFields("Auto-sync scheduled", map[string]interface{}{
		"interval": interval,
		"unit":     s.unit.String(),
	})
}

func (s *Scheduler) loop(ctx context.Context, ticker *time.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick already delivered may race with Stop.
			if ctx.Err() != nil {
				return
			}
			s.tick(context.WithoutCancel(ctx))
		}
	}
}

// Stop cancels future ticks. A tick already running completes. Stop is
// safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked() {
		s.logger.Info("Auto-sync stopped")
	}
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.interval = 0
	return true
}

// State returns the current schedule.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Running: s.cancel != nil, Interval: s.interval}
}
