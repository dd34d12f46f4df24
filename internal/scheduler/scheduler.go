// Package scheduler drives the logic tick at a target rate on a dedicated
// goroutine.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cacaoengine/cacao/internal/core/errs"
	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"go.uber.org/zap"
)

const (
	overrunWindow    = time.Minute
	overrunWarnRatio = 0.05
)

// Logic is one pipeline iteration. core/system.Runner implements it.
type Logic interface {
	Tick(dt time.Duration, fixedSteps int, fixedDt time.Duration)
}

type Options struct {
	TargetRate    int // ticks per second
	FixedRate     int // fixed steps per second, 0 disables the fixed phase
	MaxFixedSteps int // fixed-step catch-up cap per tick
	Clock         Clock
	Observer      coresys.TickObserver // optional, told about each finished tick
}

// TickState is the scheduler's view of the loop. Timestep is owned by the
// tick goroutine; State fills Running from the lifecycle flag.
type TickState struct {
	Running    bool
	Timestep   time.Duration
	TargetRate int
}

// Scheduler runs Logic once per tick. Start and Stop may be called from any
// goroutine; the tick state itself is only written by the tick goroutine and
// published through atomics for readers.
type Scheduler struct {
	log   *zap.Logger
	logic Logic
	opts  Options
	clock Clock

	lifecycle sync.Mutex // serializes Start and Stop
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	state TickState // tick goroutine only

	tick           atomic.Uint64
	lastTimestep   atomic.Int64
	lastWork       atomic.Int64
	lastFixedSteps atomic.Int64
	lastOverrun    atomic.Bool
	overruns       atomic.Uint64
	fixedDropped   atomic.Uint64
}

func New(logic Logic, opts Options, log *zap.Logger) *Scheduler {
	if opts.TargetRate <= 0 {
		opts.TargetRate = 60
	}
	if opts.MaxFixedSteps <= 0 {
		opts.MaxFixedSteps = 5
	}
	clock := opts.Clock
	if clock == nil {
		clock = WallClock()
	}
	return &Scheduler{
		log:   log,
		logic: logic,
		opts:  opts,
		clock: clock,
		state: TickState{TargetRate: opts.TargetRate},
	}
}

// Start begins ticking on a new goroutine locked to its own OS thread. It
// fails with BadInitState if the scheduler is already running.
func (s *Scheduler) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running {
		return errs.New(errs.BadInitState, "scheduler.Start", "tick loop is already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx, s.done)
	s.log.Info("tick loop started",
		zap.Int("target_tps", s.opts.TargetRate),
		zap.Int("fixed_rate", s.opts.FixedRate),
	)
	return nil
}

// Stop requests a stop and waits for the tick in progress to finish. It
// fails with BadInitState if the scheduler is not running. A stopped
// scheduler may be started again.
func (s *Scheduler) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running {
		return errs.New(errs.BadInitState, "scheduler.Stop", "tick loop is not running")
	}
	s.cancel()
	<-s.done
	s.running = false
	s.log.Info("tick loop stopped", zap.Uint64("ticks", s.tick.Load()))
	return nil
}

// Running reports whether the loop goroutine is active.
func (s *Scheduler) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.running
}

// Period is the ideal tick length.
func (s *Scheduler) Period() time.Duration {
	return time.Second / time.Duration(s.opts.TargetRate)
}

func (s *Scheduler) fixedInterval() time.Duration {
	if s.opts.FixedRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.opts.FixedRate)
}

// loop is the tick goroutine. Each iteration captures the start time, runs
// the logic with the previous tick's full period as dt, then sleeps until
// the ideal deadline or, if the tick overran, starts the next one at once.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	period := s.Period()
	fixedDt := s.fixedInterval()
	var (
		prevStart   time.Time
		accumulator time.Duration
		window      = overrunTracker{limit: int(float64(s.opts.TargetRate) * overrunWindow.Seconds() * overrunWarnRatio)}
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tickStart := s.clock.Now()
		if !prevStart.IsZero() {
			s.state.Timestep = tickStart.Sub(prevStart)
		}
		prevStart = tickStart
		deadline := tickStart.Add(period)

		steps := 0
		if fixedDt > 0 {
			accumulator += s.state.Timestep
			steps = int(accumulator / fixedDt)
			if steps > s.opts.MaxFixedSteps {
				s.fixedDropped.Add(uint64(steps - s.opts.MaxFixedSteps))
				accumulator -= time.Duration(steps) * fixedDt
				steps = s.opts.MaxFixedSteps
			} else {
				accumulator -= time.Duration(steps) * fixedDt
			}
		}

		tick := s.tick.Add(1)
		s.logic.Tick(s.state.Timestep, steps, fixedDt)

		tickEnd := s.clock.Now()
		work := tickEnd.Sub(tickStart)
		overrun := !tickEnd.Before(deadline)

		s.lastTimestep.Store(int64(s.state.Timestep))
		s.lastWork.Store(int64(work))
		s.lastFixedSteps.Store(int64(steps))
		s.lastOverrun.Store(overrun)
		if overrun {
			s.overruns.Add(1)
		}
		if s.opts.Observer != nil {
			s.opts.Observer.TickDone(coresys.TickReport{
				Tick:       tick,
				Timestep:   s.state.Timestep,
				Work:       work,
				FixedSteps: steps,
				Overrun:    overrun,
			})
		}
		if n, warn := window.observe(tickStart, overrun); warn {
			s.log.Warn("sustained tick overrun",
				zap.Int("overruns", n),
				zap.Duration("window", overrunWindow),
				zap.Duration("period", period),
			)
		}

		if !overrun {
			s.clock.SleepUntil(ctx, deadline)
		}
	}
}

// overrunTracker counts overruns per window and reports once when a window
// closes above the limit.
type overrunTracker struct {
	limit int
	start time.Time
	count int
}

func (t *overrunTracker) observe(now time.Time, overrun bool) (int, bool) {
	if t.start.IsZero() {
		t.start = now
	}
	var n int
	var warn bool
	if now.Sub(t.start) >= overrunWindow {
		n, warn = t.count, t.count > t.limit
		t.start = now
		t.count = 0
	}
	if overrun {
		t.count++
	}
	return n, warn
}

// State returns a copy of the tick state as last published.
func (s *Scheduler) State() TickState {
	return TickState{
		Running:    s.Running(),
		Timestep:   time.Duration(s.lastTimestep.Load()),
		TargetRate: s.opts.TargetRate,
	}
}

// Tick returns the number of ticks started.
func (s *Scheduler) Tick() uint64 { return s.tick.Load() }

func (s *Scheduler) LastWork() time.Duration { return time.Duration(s.lastWork.Load()) }

func (s *Scheduler) LastFixedSteps() int { return int(s.lastFixedSteps.Load()) }

func (s *Scheduler) LastOverrun() bool { return s.lastOverrun.Load() }

// Overruns returns the number of ticks whose work exceeded the period.
func (s *Scheduler) Overruns() uint64 { return s.overruns.Load() }

// FixedStepsDropped returns fixed steps discarded by the catch-up cap.
func (s *Scheduler) FixedStepsDropped() uint64 { return s.fixedDropped.Load() }
