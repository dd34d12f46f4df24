// Package engine owns every pipeline component and their lifecycle. One
// Engine is built per process and passed explicitly; nothing is global.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/config"
	"github.com/cacaoengine/cacao/internal/core/event"
	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/gpu"
	"github.com/cacaoengine/cacao/internal/input"
	"github.com/cacaoengine/cacao/internal/parallel"
	"github.com/cacaoengine/cacao/internal/persist"
	"github.com/cacaoengine/cacao/internal/render"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/cacaoengine/cacao/internal/scheduler"
	"github.com/cacaoengine/cacao/internal/scripting"
	"github.com/cacaoengine/cacao/internal/snapshot"
	"github.com/cacaoengine/cacao/internal/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine is the explicit context every component is constructed from.
type Engine struct {
	cfg *config.Config
	log *zap.Logger

	bus       *event.Bus
	input     *input.State
	worlds    *scene.Manager
	frames    *render.Queue
	executor  *gpu.Executor
	assets    *asset.Registry
	scripts   *scripting.Engine
	pool      *parallel.WorkerPool
	committer *snapshot.Committer
	runner    *coresys.Runner
	ticks     *scheduler.Scheduler

	db       *persist.DB // nil unless telemetry is enabled
	recorder *persist.Recorder

	commit *system.FrameCommitSystem
}

// New wires the pipeline. When telemetry is enabled it connects to the
// database and applies migrations, which is the only work that uses ctx.
func New(ctx context.Context, cfg *config.Config, backend gpu.Backend, window gpu.Window, log *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		log:   log,
		bus:   event.NewBus(),
		input: input.NewState(),
	}

	w, h := window.Size()
	if w <= 0 || h <= 0 {
		w, h = cfg.Window.Width, cfg.Window.Height
	}
	e.worlds = scene.NewManager(scene.Viewport{Width: w, Height: h}, log)
	e.worlds.Subscribe(e.bus)
	e.input.Subscribe(e.bus)

	e.frames = render.NewQueue(cfg.Engine.MaxFrameLag, log)
	e.executor = gpu.NewExecutor(backend, window, e.bus, e.frames, gpu.Options{
		IdlePoll:        cfg.GPU.IdlePoll,
		ShutdownTimeout: cfg.GPU.ShutdownTimeout,
	}, log)
	event.Subscribe(e.bus, func(event.WindowClosed) {
		e.log.Info("window closed")
		e.executor.RequestStop()
	})

	e.assets = asset.NewRegistry(e.executor, backend, log)

	scripts, err := scripting.NewEngine(cfg.World.ScriptsDir, e.input, log)
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}
	e.scripts = scripts

	e.pool = parallel.NewWorkerPool(parallel.SizeFor(cfg.Engine.ReservedThreads))
	e.committer = snapshot.NewCommitter(e.worlds, log)

	e.runner = coresys.NewRunner()

	active := system.NewActiveScripts(e.worlds, e.pool, log)
	e.commit = system.NewFrameCommitSystem(e.worlds, e.pool, e.committer, e.frames, log)

	e.runner.Register(system.NewInputSystem(e.input))
	e.runner.Register(active)
	e.runner.Register(system.NewFixedScriptSystem(active))
	e.runner.Register(system.NewScriptSystem(active, log))
	e.runner.Register(e.commit)
	e.runner.Register(system.NewCleanupSystem(e.worlds, log))

	var observer coresys.TickObserver
	if cfg.Telemetry.Enabled {
		if err := e.openTelemetry(ctx); err != nil {
			e.pool.Close()
			e.scripts.Close()
			return nil, err
		}
		telemetry := system.NewTelemetrySystem(e.frames, e.commit, e.recorder)
		e.runner.Register(telemetry)
		observer = telemetry
	}

	e.ticks = scheduler.New(e.runner, scheduler.Options{
		TargetRate:    cfg.Engine.TargetDynTPS,
		FixedRate:     cfg.Engine.FixedTickRate,
		MaxFixedSteps: cfg.Engine.MaxFixedSteps,
		Observer:      observer,
	}, log)

	log.Info("engine wired",
		zap.Int("workers", e.pool.Workers()),
		zap.Int("systems", e.runner.Len()),
		zap.Int("max_frame_lag", e.frames.MaxLag()),
		zap.Bool("telemetry", e.recorder != nil),
	)
	return e, nil
}

func (e *Engine) openTelemetry(ctx context.Context) error {
	db, err := persist.NewDB(ctx, e.cfg.Telemetry, e.log)
	if err != nil {
		return fmt.Errorf("telemetry database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("telemetry migrations: %w", err)
	}
	runID := time.Now().UTC().Format("20060102T150405.000")
	e.db = db
	e.recorder = persist.NewRecorder(
		persist.NewTickSampleRepo(db, runID),
		e.cfg.Telemetry.FlushEvery,
		e.cfg.Telemetry.Buffer,
		e.cfg.Telemetry.Timeout,
		e.log,
	)
	return nil
}

// Run drives the engine until ctx is done, the window closes, or startup
// fails. It must be called on a goroutine locked to its OS thread; that
// goroutine becomes the GPU thread. Run always tears the engine down before
// returning.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.executor.Init(); err != nil {
		e.pool.Close()
		e.scripts.Close()
		e.closeDB()
		return fmt.Errorf("gpu init: %w", err)
	}
	if e.recorder != nil {
		go e.recorder.Run()
	}

	startCtx, cancelStartup := context.WithCancel(ctx)
	defer cancelStartup()
	g, gctx := errgroup.WithContext(startCtx)
	g.Go(func() error {
		if err := e.startup(gctx); err != nil {
			e.executor.RequestStop()
			return err
		}
		return nil
	})

	runErr := e.executor.Run(ctx)

	// Join startup first so it cannot start the tick loop once teardown
	// has begun.
	e.frames.SetShuttingDown()
	cleared := e.frames.ClearRenderQueue()
	cancelStartup()
	startErr := g.Wait()
	if errors.Is(startErr, context.Canceled) {
		startErr = nil
	}

	err := multierr.Combine(runErr, startErr, e.teardown(context.WithoutCancel(ctx)))
	e.log.Info("engine stopped",
		zap.Uint64("ticks", e.ticks.Tick()),
		zap.Uint64("frames_drawn", e.executor.Stats().FramesDrawn),
		zap.Uint64("frames_dropped", e.frames.Dropped()),
		zap.Int("frames_cleared", cleared),
		zap.Error(err),
	)
	return err
}

// startup loads the world, compiles its resources through the GPU thread
// and starts ticking once everything is resident.
func (e *Engine) startup(ctx context.Context) error {
	w, err := scene.Load(e.cfg.World.Path, e.assets, e.scripts)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}

	pending := e.assets.Resources()
	cg, cctx := errgroup.WithContext(ctx)
	for _, r := range pending {
		if r.State() != asset.StatePending {
			continue
		}
		fut := r.CompileAsync()
		cg.Go(func() error {
			_, err := fut.Wait(cctx)
			return err
		})
	}
	if err := cg.Wait(); err != nil {
		return fmt.Errorf("compile world %s: %w", w.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Info("world resident", zap.String("world", w.Name), zap.Int("resources", len(pending)))

	e.worlds.SetActive(w)
	return e.ticks.Start()
}

// teardown runs on the GPU thread after the GPU loop has returned.
func (e *Engine) teardown(ctx context.Context) error {
	var err error
	if e.ticks.Running() {
		err = multierr.Append(err, e.ticks.Stop())
	}
	e.pool.Close()
	if e.recorder != nil {
		e.recorder.Close()
		written, dropped, failed := e.recorder.Stats()
		e.log.Info("telemetry flushed",
			zap.Uint64("written", written),
			zap.Uint64("dropped", dropped),
			zap.Uint64("failed", failed),
		)
	}
	e.scripts.Close()
	// Compile jobs left by a cancelled startup must land before release.
	if _, perr := e.executor.RunPending(); perr != nil {
		err = multierr.Append(err, perr)
	}
	err = multierr.Append(err, e.assets.ReleaseAll())
	err = multierr.Append(err, e.executor.Shutdown(ctx))
	e.closeDB()
	return err
}

func (e *Engine) closeDB() {
	if e.db != nil {
		e.db.Close()
	}
}

func (e *Engine) Worlds() *scene.Manager          { return e.worlds }
func (e *Engine) Frames() *render.Queue           { return e.frames }
func (e *Engine) Executor() *gpu.Executor         { return e.executor }
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.ticks }
func (e *Engine) Assets() *asset.Registry         { return e.assets }
func (e *Engine) Bus() *event.Bus                 { return e.bus }
