// Package headless is a GPU backend and window that draw nothing. It keeps
// the bookkeeping a real backend would (live handles, binds, in-flight
// submissions) so the pipeline can run and be tested without a device.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/core/event"
	"github.com/cacaoengine/cacao/internal/gpu"
	"github.com/cacaoengine/cacao/internal/render"
	"go.uber.org/zap"
)

// Backend implements gpu.Backend.
type Backend struct {
	log *zap.Logger

	// Latency is how long each presented frame stays in flight.
	Latency time.Duration

	mu          sync.Mutex
	initialized bool
	next        asset.Handle
	live        map[asset.Handle]string
	bound       map[asset.Handle]bool
	inflight    time.Time // completion time of the newest submission
	draws       uint64
	presents    uint64
	commands    uint64
	lastSeq     uint64
}

var _ gpu.Backend = (*Backend)(nil)

func NewBackend(latency time.Duration, log *zap.Logger) *Backend {
	return &Backend{
		log:     log,
		Latency: latency,
		live:    make(map[asset.Handle]string, 64),
		bound:   make(map[asset.Handle]bool, 16),
	}
}

func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return fmt.Errorf("headless backend already initialized")
	}
	b.initialized = true
	return nil
}

func (b *Backend) CompileResource(kind asset.Kind, name string, payload any) (asset.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, fmt.Errorf("compile %s %s: backend not initialized", kind, name)
	}
	switch p := payload.(type) {
	case asset.MeshData:
		if len(p.Vertices) == 0 {
			return 0, fmt.Errorf("mesh %s has no vertices", name)
		}
	case asset.TextureData:
		if len(p.Pixels) != p.Width*p.Height*p.Channels {
			return 0, fmt.Errorf("texture %s: %d bytes for %dx%dx%d", name, len(p.Pixels), p.Width, p.Height, p.Channels)
		}
	}
	b.next++
	b.live[b.next] = kind.String() + ":" + name
	b.log.Debug("resource compiled", zap.String("resource", b.live[b.next]), zap.Uint64("handle", uint64(b.next)))
	return b.next, nil
}

func (b *Backend) ReleaseResource(h asset.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[h]; !ok {
		return fmt.Errorf("release of unknown handle %d", h)
	}
	delete(b.live, h)
	delete(b.bound, h)
	return nil
}

func (b *Backend) BindResource(h asset.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[h]; !ok {
		return fmt.Errorf("bind of unknown handle %d", h)
	}
	b.bound[h] = true
	return nil
}

func (b *Backend) UnbindResource(h asset.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bound, h)
	return nil
}

// Draw checks that every resource the frame references is ready. A frame
// referencing an uncompiled mesh is rejected with ResourceNotReady.
func (b *Backend) Draw(f *render.Frame) error {
	n := 0
	if snap := f.Snapshot; snap != nil {
		for _, cmd := range snap.Commands() {
			if !cmd.Mesh.Ready() {
				return errs.New(errs.ResourceNotReady, "headless.Draw", "%s is %s", cmd.Mesh, cmd.Mesh.State())
			}
		}
		if sb := snap.Skybox(); sb != nil && !sb.Texture.Ready() {
			return errs.New(errs.ResourceNotReady, "headless.Draw", "skybox %s is %s", sb.Texture, sb.Texture.State())
		}
		n = snap.Len()
	}
	b.mu.Lock()
	b.draws++
	b.commands += uint64(n)
	b.lastSeq = f.Seq
	b.mu.Unlock()
	return nil
}

func (b *Backend) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presents++
	b.inflight = time.Now().Add(b.Latency)
	return nil
}

func (b *Backend) WaitIdle(ctx context.Context) error {
	b.mu.Lock()
	until := b.inflight
	b.mu.Unlock()
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown fails if any resource is still live.
func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
	if n := len(b.live); n > 0 {
		return fmt.Errorf("%d resources still live at shutdown", n)
	}
	return nil
}

// Stats is a copy of the backend's counters.
type Stats struct {
	Live, Bound     int
	Draws, Presents uint64
	Commands        uint64
	LastSeq         uint64
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Live:     len(b.live),
		Bound:    len(b.bound),
		Draws:    b.draws,
		Presents: b.presents,
		Commands: b.commands,
		LastSeq:  b.lastSeq,
	}
}

// Window implements gpu.Window. Events injected from any goroutine are
// published on the next PollEvents.
type Window struct {
	mu      sync.Mutex
	width   int
	height  int
	pending []any
	polls   uint64
}

var _ gpu.Window = (*Window)(nil)

func NewWindow(width, height int) *Window {
	w := &Window{width: width, height: height}
	w.pending = append(w.pending, event.WindowResized{Width: width, Height: height})
	return w
}

// Inject queues an event for the next poll.
func (w *Window) Inject(ev any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := ev.(event.WindowResized); ok {
		w.width, w.height = r.Width, r.Height
	}
	w.pending = append(w.pending, ev)
}

// Close queues a WindowClosed event.
func (w *Window) Close() { w.Inject(event.WindowClosed{}) }

func (w *Window) PollEvents(sink gpu.EventSink) {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.polls++
	w.mu.Unlock()
	for _, ev := range batch {
		sink.Publish(ev)
	}
}

func (w *Window) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Polls counts PollEvents calls.
func (w *Window) Polls() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polls
}
