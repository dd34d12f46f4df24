// Package gpu owns the GPU-affine goroutine: it runs the render loop and is
// the only place GPU-affecting work executes.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/core/event"
	"github.com/cacaoengine/cacao/internal/core/future"
	"github.com/cacaoengine/cacao/internal/render"
	"go.uber.org/zap"
)

// State is the executor lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Options struct {
	IdlePoll        time.Duration // longest sleep when there is nothing to do
	ShutdownTimeout time.Duration // bound on WaitIdle during Shutdown
}

// job is a marshaled closure. fail resolves its future without running it.
type job struct {
	run  func()
	fail func(error)
}

// Stats are cumulative loop counters.
type Stats struct {
	Iterations  uint64
	FramesDrawn uint64
	JobsRun     uint64
	DrawErrors  uint64
}

// Executor runs the GPU loop. Init, Run and Shutdown must be called on the
// same goroutine, which should be locked to its OS thread; that goroutine
// becomes the GPU-affine one. RunOnGPUThread and Call are safe from any
// goroutine.
type Executor struct {
	log     *zap.Logger
	backend Backend
	window  Window
	bus     *event.Bus
	frames  *render.Queue
	opts    Options

	state    atomic.Int32
	owner    atomic.Uint64 // goroutine ID bound at Init
	draining atomic.Bool   // Shutdown is running the last queued jobs

	mu     sync.Mutex // guards jobs and closed
	jobs   []job
	closed bool
	wake   chan struct{}

	stopOnce sync.Once
	stop     chan struct{}

	iterations  atomic.Uint64
	framesDrawn atomic.Uint64
	jobsRun     atomic.Uint64
	drawErrors  atomic.Uint64
}

func NewExecutor(backend Backend, window Window, bus *event.Bus, frames *render.Queue, opts Options, log *zap.Logger) *Executor {
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = 2 * time.Millisecond
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Executor{
		log:     log,
		backend: backend,
		window:  window,
		bus:     bus,
		frames:  frames,
		opts:    opts,
		jobs:    make([]job, 0, 32),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (e *Executor) State() State { return State(e.state.Load()) }

func (e *Executor) Stats() Stats {
	return Stats{
		Iterations:  e.iterations.Load(),
		FramesDrawn: e.framesDrawn.Load(),
		JobsRun:     e.jobsRun.Load(),
		DrawErrors:  e.drawErrors.Load(),
	}
}

// OnGPUThread reports whether the caller is the GPU-affine goroutine.
func (e *Executor) OnGPUThread() bool {
	owner := e.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// CheckAffinity returns ThreadAffinityViolation unless called on the
// GPU-affine goroutine, and BadInitState before Init.
func (e *Executor) CheckAffinity(op string) error {
	owner := e.owner.Load()
	if owner == 0 {
		return errs.New(errs.BadInitState, op, "gpu executor is not initialized")
	}
	if id := goroutineID(); id != owner {
		return errs.New(errs.ThreadAffinityViolation, op, "called from goroutine %d, gpu goroutine is %d", id, owner)
	}
	return nil
}

// Init binds the calling goroutine as the GPU-affine one and initializes the
// backend.
func (e *Executor) Init() error {
	const op = "gpu.Init"
	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitialized)) {
		return errs.New(errs.BadInitState, op, "executor is %s", e.State())
	}
	e.owner.Store(goroutineID())
	if err := e.backend.Init(); err != nil {
		e.owner.Store(0)
		e.state.Store(int32(StateUninitialized))
		return errs.Wrap(errs.BadInitState, op, err)
	}
	e.log.Info("gpu executor initialized")
	return nil
}

// RunOnGPUThread runs fn on the GPU-affine goroutine. Called on that
// goroutine, fn runs before RunOnGPUThread returns and the future is already
// resolved. Otherwise fn is queued and the future resolves after the loop
// runs it. Once shutdown has begun the future resolves with BadInitState.
func (e *Executor) RunOnGPUThread(fn func() error) *future.Future[struct{}] {
	return Call(e, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Call is RunOnGPUThread for closures that produce a value.
func Call[T any](e *Executor, fn func() (T, error)) *future.Future[T] {
	if e.OnGPUThread() {
		if e.State() >= StateShuttingDown && !e.draining.Load() {
			var zero T
			return future.Resolved(zero, errs.New(errs.BadInitState, "gpu.RunOnGPUThread", "executor is %s", e.State()))
		}
		v, err := runGuarded(fn)
		e.jobsRun.Add(1)
		return future.Resolved(v, err)
	}

	f := future.New[T]()
	j := job{
		run: func() {
			f.Resolve(runGuarded(fn))
		},
		fail: func(err error) {
			var zero T
			f.Resolve(zero, err)
		},
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		j.fail(errs.New(errs.BadInitState, "gpu.RunOnGPUThread", "executor is shutting down"))
		return f
	}
	e.jobs = append(e.jobs, j)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return f
}

func runGuarded[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gpu job panicked: %v", r)
		}
	}()
	return fn()
}

// Pending returns the number of queued jobs.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

func (e *Executor) drainJobs() int {
	e.mu.Lock()
	batch := e.jobs
	e.jobs = make([]job, 0, cap(batch))
	e.mu.Unlock()

	for _, j := range batch {
		j.run()
	}
	e.jobsRun.Add(uint64(len(batch)))
	return len(batch)
}

// RunPending runs the queued jobs now. GPU goroutine only; used between
// Run returning and Shutdown so late jobs cannot outlive teardown steps.
func (e *Executor) RunPending() (int, error) {
	if err := e.CheckAffinity("gpu.RunPending"); err != nil {
		return 0, err
	}
	return e.drainJobs(), nil
}

// RequestStop makes Run return after its current iteration. Safe from any
// goroutine and idempotent.
func (e *Executor) RequestStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Run is the GPU loop. Each iteration polls the window, runs queued jobs,
// flushes the event bus, then takes at most one frame from the queue (the
// queue's lag policy may skip to the newest), draws and presents it. Jobs
// run before the frame so resources they compile are ready for its draw.
//
// Run returns nil when ctx is done or RequestStop is called, and an error
// if the device is lost.
func (e *Executor) Run(ctx context.Context) error {
	const op = "gpu.Run"
	if err := e.CheckAffinity(op); err != nil {
		return err
	}
	if !e.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning)) {
		return errs.New(errs.BadInitState, op, "executor is %s", e.State())
	}
	e.log.Info("gpu loop started", zap.Duration("idle_poll", e.opts.IdlePoll))

	idle := time.NewTimer(e.opts.IdlePoll)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("gpu loop stopped", zap.String("reason", "context"))
			return nil
		case <-e.stop:
			e.log.Info("gpu loop stopped", zap.String("reason", "requested"))
			return nil
		default:
		}
		e.iterations.Add(1)

		e.window.PollEvents(e.bus)
		e.drainJobs()
		e.bus.Flush()

		f := e.frames.Next()
		if f == nil {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(e.opts.IdlePoll)
			select {
			case <-ctx.Done():
			case <-e.stop:
			case <-e.wake:
			case <-e.frames.Ready():
			case <-idle.C:
			}
			continue
		}

		if err := e.present(f); err != nil {
			return err
		}
	}
}

func (e *Executor) present(f *render.Frame) error {
	err := e.backend.Draw(f)
	if err == nil {
		err = e.backend.Present()
	}
	if err == nil {
		e.framesDrawn.Add(1)
		return nil
	}
	if errors.Is(err, ErrDeviceLost) {
		e.log.Error("gpu device lost", zap.Uint64("seq", f.Seq), zap.Error(err))
		return err
	}
	e.drawErrors.Add(1)
	e.log.Warn("frame not drawn", zap.Uint64("seq", f.Seq), zap.Error(err))
	return nil
}

// Shutdown refuses new jobs, runs the ones already queued so no future is
// left pending, waits for the GPU to go idle, and tears the backend down.
// If the GPU does not go idle within the shutdown timeout the backend is
// left as is and the timeout is returned.
// It must be called on the GPU goroutine after Run has returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	const op = "gpu.Shutdown"
	switch s := e.State(); s {
	case StateInitialized, StateRunning:
	default:
		return errs.New(errs.BadInitState, op, "executor is %s", s)
	}
	if err := e.CheckAffinity(op); err != nil {
		return err
	}
	e.state.Store(int32(StateShuttingDown))
	e.RequestStop()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.draining.Store(true)
	drained := e.drainJobs()
	e.draining.Store(false)

	ctx, cancel := context.WithTimeout(ctx, e.opts.ShutdownTimeout)
	defer cancel()

	var err error
	if werr := e.backend.WaitIdle(ctx); werr != nil {
		// Never tear down with work in flight.
		err = fmt.Errorf("wait gpu idle: %w", werr)
	} else if serr := e.backend.Shutdown(); serr != nil {
		err = fmt.Errorf("backend shutdown: %w", serr)
	}
	e.state.Store(int32(StateTerminated))
	e.log.Info("gpu executor terminated", zap.Int("drained_jobs", drained), zap.Error(err))
	return err
}
