package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/config"
)

// DefaultMinDelay floors the delay between cycles.
const DefaultMinDelay = time.Second

// CycleFunc is one collect-and-dispatch pass.
type CycleFunc func(ctx context.Context) error

// SchedulerConfig controls the pause between cycles. An Interval of zero runs
// a single cycle.
type SchedulerConfig struct {
	Interval time.Duration
	Jitter   time.Duration
	MinDelay time.Duration
}

// SchedulerConfigFromConfig maps the loaded configuration onto scheduler settings.
func SchedulerConfigFromConfig(cfg config.SchedulerConfig) SchedulerConfig {
	return SchedulerConfig{
		Interval: cfg.Interval(),
		Jitter:   cfg.Jitter(),
		MinDelay: cfg.MinDelay(),
	}
}

// Scheduler runs cycles back to back with a jittered pause and never lets two
// cycles overlap.
type Scheduler struct {
	config  SchedulerConfig
	cycle   CycleFunc
	logger  *logrus.Logger
	running atomic.Bool
	skipped atomic.Int64

	// cycleMu is held for the duration of a cycle; Shutdown acquires it to wait.
	cycleMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	random   func() float64
}

// NewScheduler creates a scheduler that invokes cycle on every tick.
func NewScheduler(cfg SchedulerConfig, cycle CycleFunc, logger *logrus.Logger) *Scheduler {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		config: cfg,
		cycle:  cycle,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		random: rand.Float64,
	}
}

// Tick runs one cycle unless one is already running, in which case the tick
// is dropped with a warning. It reports whether the cycle ran. The cycle is
// detached from ctx cancellation so a shutdown never cuts a send in half.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("Previous cycle still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	if s.stopping(context.Background()) {
		return false
	}

	if err := s.cycle(context.WithoutCancel(ctx)); err != nil {
		s.logger.WithError(err).Debug("Cycle ended with error")
	}
	return true
}

// Run ticks until ctx is done or Shutdown is called. With a zero interval it
// returns after the first cycle.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	for {
		if s.stopping(ctx) {
			return
		}
		s.Tick(ctx)
		if s.config.Interval <= 0 {
			return
		}

		delay := s.NextDelay()
		s.logger.WithField("delay_ms", delay.Milliseconds()).Debug("Next cycle scheduled")
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Shutdown stops further ticks and waits for the in-flight cycle, bounded by
// ctx. Calling it more than once is safe.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.logger.Info("Scheduler stopping")
	})

	finished := make(chan struct{})
	go func() {
		s.cycleMu.Lock()
		s.cycleMu.Unlock()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// SkippedTicks returns how many ticks were dropped because a cycle was running.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

// NextDelay returns Interval plus a uniform offset in [-Jitter, +Jitter],
// never less than MinDelay.
func (s *Scheduler) NextDelay() time.Duration {
	delay := s.config.Interval
	if s.config.Jitter > 0 {
		offset := (s.random()*2 - 1) * float64(s.config.Jitter)
		delay += time.Duration(offset)
	}
	if delay < s.config.MinDelay {
		delay = s.config.MinDelay
	}
	return delay
}

func (s *Scheduler) stopping(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
