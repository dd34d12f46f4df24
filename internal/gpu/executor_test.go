package gpu_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/core/event"
	"github.com/cacaoengine/cacao/internal/core/future"
	"github.com/cacaoengine/cacao/internal/gpu"
	"github.com/cacaoengine/cacao/internal/gpu/headless"
	"github.com/cacaoengine/cacao/internal/render"
	"go.uber.org/zap/zaptest"
)

type rig struct {
	ex      *gpu.Executor
	backend *headless.Backend
	window  *headless.Window
	bus     *event.Bus
	frames  *render.Queue
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := zaptest.NewLogger(t)
	r := &rig{
		backend: headless.NewBackend(0, log),
		window:  headless.NewWindow(640, 480),
		bus:     event.NewBus(),
		frames:  render.NewQueue(2, log),
	}
	r.ex = gpu.NewExecutor(r.backend, r.window, r.bus, r.frames, gpu.Options{IdlePoll: time.Millisecond}, log)
	return r
}

// submit calls RunOnGPUThread from a fresh goroutine and returns its future.
func submit(ex *gpu.Executor, fn func() error) *future.Future[struct{}] {
	ch := make(chan *future.Future[struct{}])
	go func() { ch <- ex.RunOnGPUThread(fn) }()
	return <-ch
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecutor_InitTwiceIsBadInitState(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	if err := r.ex.Init(); errs.KindOf(err) != errs.BadInitState {
		t.Errorf("second Init = %v, want BadInitState", err)
	}
}

func TestExecutor_ShutdownBeforeInitIsBadInitState(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Shutdown(testContext(t)); errs.KindOf(err) != errs.BadInitState {
		t.Errorf("Shutdown = %v, want BadInitState", err)
	}
}

func TestExecutor_InlineOnGPUThread(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	ran := false
	fut := r.ex.RunOnGPUThread(func() error { ran = true; return nil })
	if !ran {
		t.Fatal("closure did not run before RunOnGPUThread returned")
	}
	if _, err, ok := fut.Poll(); !ok || err != nil {
		t.Errorf("future = (%v, %v), want resolved nil", err, ok)
	}
	if r.ex.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", r.ex.Pending())
	}
}

func TestExecutor_MarshaledFromOtherGoroutine(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}

	var ran atomic.Bool
	var onGPU atomic.Bool
	fut := submit(r.ex, func() error {
		ran.Store(true)
		onGPU.Store(r.ex.OnGPUThread())
		r.ex.RequestStop()
		return nil
	})
	if ran.Load() {
		t.Fatal("marshaled closure ran on the caller")
	}
	if _, _, ok := fut.Poll(); ok {
		t.Fatal("future resolved before the GPU loop ran")
	}

	if err := r.ex.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := fut.Wait(ctx); err != nil {
		t.Fatalf("job error: %v", err)
	}
	if !ran.Load() || !onGPU.Load() {
		t.Errorf("ran = %v, onGPU = %v; want both true", ran.Load(), onGPU.Load())
	}
}

func TestExecutor_CallReturnsValue(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	ch := make(chan *future.Future[int])
	go func() {
		ch <- gpu.Call(r.ex, func() (int, error) {
			r.ex.RequestStop()
			return 42, nil
		})
	}()
	fut := <-ch
	if err := r.ex.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if v, err := fut.Wait(ctx); v != 42 || err != nil {
		t.Errorf("Call = (%d, %v), want (42, nil)", v, err)
	}
}

func TestExecutor_PreservesPerCallerOrder(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	var order []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 20 {
			r.ex.RunOnGPUThread(func() error { order = append(order, i); return nil })
		}
		r.ex.RunOnGPUThread(func() error { r.ex.RequestStop(); return nil })
	}()
	<-done
	if err := r.ex.Run(ctx); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..19", order)
		}
	}
	if len(order) != 20 {
		t.Errorf("ran %d jobs, want 20", len(order))
	}
}

func TestExecutor_JobPanicBecomesError(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	fut := r.ex.RunOnGPUThread(func() error { panic("boom") })
	if _, err, _ := fut.Poll(); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want panic error", err)
	}
}

func TestExecutor_CheckAffinity(t *testing.T) {
	r := newRig(t)
	if err := r.ex.CheckAffinity("op"); errs.KindOf(err) != errs.BadInitState {
		t.Errorf("before Init: %v, want BadInitState", err)
	}
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	if err := r.ex.CheckAffinity("op"); err != nil {
		t.Errorf("on GPU goroutine: %v", err)
	}
	errCh := make(chan error)
	go func() { errCh <- r.ex.CheckAffinity("op") }()
	if err := <-errCh; errs.KindOf(err) != errs.ThreadAffinityViolation {
		t.Errorf("off GPU goroutine: %v, want ThreadAffinityViolation", err)
	}
}

func TestExecutor_RunOffThreadIsAffinityViolation(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error)
	go func() { errCh <- r.ex.Run(context.Background()) }()
	if err := <-errCh; errs.KindOf(err) != errs.ThreadAffinityViolation {
		t.Errorf("Run off thread = %v, want ThreadAffinityViolation", err)
	}
}

func TestExecutor_ShutdownDrainsAndRejects(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	var ran atomic.Int32
	queued := []*future.Future[struct{}]{
		submit(r.ex, func() error { ran.Add(1); return nil }),
		submit(r.ex, func() error { ran.Add(1); return nil }),
	}

	if err := r.ex.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if r.ex.State() != gpu.StateTerminated {
		t.Errorf("State = %v, want terminated", r.ex.State())
	}
	for i, f := range queued {
		if _, err, ok := f.Poll(); !ok || err != nil {
			t.Errorf("queued job %d: resolved=%v err=%v", i, ok, err)
		}
	}
	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2", ran.Load())
	}

	late := submit(r.ex, func() error { ran.Add(1); return nil })
	if _, err, ok := late.Poll(); !ok || errs.KindOf(err) != errs.BadInitState {
		t.Errorf("late job: resolved=%v err=%v, want BadInitState", ok, err)
	}
	if err := r.ex.Shutdown(ctx); errs.KindOf(err) != errs.BadInitState {
		t.Errorf("second Shutdown = %v, want BadInitState", err)
	}
}

func TestExecutor_DrawsFramesAndDispatchesEvents(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	var resized atomic.Int32
	event.Subscribe(r.bus, func(event.WindowResized) { resized.Add(1) })
	event.Subscribe(r.bus, func(event.WindowClosed) { r.ex.RequestStop() })

	for range 3 {
		r.frames.EnqueueFrame(nil)
	}
	go func() {
		deadline := time.Now().Add(4 * time.Second)
		for r.frames.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		r.window.Close()
	}()
	if err := r.ex.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if resized.Load() != 1 {
		t.Errorf("resize events = %d, want 1 (initial size)", resized.Load())
	}
	// maxLag 2 with 3 queued: the first Next skips straight to the newest.
	if got := r.ex.Stats().FramesDrawn; got != 1 {
		t.Errorf("FramesDrawn = %d, want 1", got)
	}
	if st := r.backend.Stats(); st.Presents != 1 || st.LastSeq != 3 {
		t.Errorf("backend stats = %+v, want one present of seq 3", st)
	}
	if err := r.ex.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestExecutor_RunPending(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	var ran atomic.Int32
	fut := submit(r.ex, func() error { ran.Add(1); return nil })

	done := make(chan error, 1)
	go func() {
		_, err := r.ex.RunPending()
		done <- err
	}()
	if err := <-done; errs.KindOf(err) != errs.ThreadAffinityViolation {
		t.Errorf("off-thread RunPending = %v, want ThreadAffinityViolation", err)
	}

	n, err := r.ex.RunPending()
	if err != nil || n != 1 {
		t.Fatalf("RunPending = %d, %v", n, err)
	}
	if _, err, ok := fut.Poll(); !ok || err != nil || ran.Load() != 1 {
		t.Errorf("job ran %d times, future ok=%v err=%v", ran.Load(), ok, err)
	}
}

func TestExecutor_InlineAfterShutdownIsRejected(t *testing.T) {
	r := newRig(t)
	if err := r.ex.Init(); err != nil {
		t.Fatal(err)
	}
	// A job drained by Shutdown may still use the GPU thread inline.
	var nested atomic.Int32
	queued := submit(r.ex, func() error {
		_, err, _ := r.ex.RunOnGPUThread(func() error { nested.Add(1); return nil }).Poll()
		return err
	})
	if err := r.ex.Shutdown(testContext(t)); err != nil {
		t.Fatal(err)
	}
	if _, err, ok := queued.Poll(); !ok || err != nil || nested.Load() != 1 {
		t.Errorf("drained job: resolved=%v err=%v nested=%d", ok, err, nested.Load())
	}

	var ran atomic.Bool
	fut := r.ex.RunOnGPUThread(func() error { ran.Store(true); return nil })
	if _, err, ok := fut.Poll(); !ok || errs.KindOf(err) != errs.BadInitState {
		t.Errorf("inline after shutdown: resolved=%v err=%v, want BadInitState", ok, err)
	}
	if ran.Load() {
		t.Error("closure ran on a terminated executor")
	}
	if _, err, _ := gpu.Call(r.ex, func() (int, error) { return 1, nil }).Poll(); errs.KindOf(err) != errs.BadInitState {
		t.Errorf("Call after shutdown = %v, want BadInitState", err)
	}
}
