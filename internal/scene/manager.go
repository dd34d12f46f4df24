package scene

import (
	"sync/atomic"

	"github.com/cacaoengine/cacao/internal/core/event"
	"go.uber.org/zap"
)

// Viewport is the drawable size in pixels.
type Viewport struct {
	Width, Height int
}

// Aspect returns width/height, or 1 for a degenerate viewport.
func (v Viewport) Aspect() float32 {
	if v.Width <= 0 || v.Height <= 0 {
		return 1
	}
	return float32(v.Width) / float32(v.Height)
}

// Manager tracks the active world and the current viewport. The active
// world is set by startup and read by the tick goroutine; the viewport is
// written by resize events on the GPU goroutine and read at commit time.
type Manager struct {
	log      *zap.Logger
	active   atomic.Pointer[World]
	viewport atomic.Pointer[Viewport]
}

func NewManager(initial Viewport, log *zap.Logger) *Manager {
	m := &Manager{log: log}
	m.viewport.Store(&initial)
	return m
}

// SetActive makes w the world ticked and committed from the next tick on.
// Passing nil deactivates the current world.
func (m *Manager) SetActive(w *World) {
	prev := m.active.Swap(w)
	switch {
	case w == nil:
		m.log.Info("active world cleared")
	case prev == nil:
		m.log.Info("active world set", zap.String("world", w.Name))
	default:
		m.log.Info("active world switched", zap.String("from", prev.Name), zap.String("to", w.Name))
	}
}

// Active returns the active world, or nil.
func (m *Manager) Active() *World { return m.active.Load() }

func (m *Manager) Viewport() Viewport { return *m.viewport.Load() }

// Subscribe keeps the viewport in sync with window resizes.
func (m *Manager) Subscribe(b *event.Bus) {
	event.Subscribe(b, func(e event.WindowResized) {
		m.viewport.Store(&Viewport{Width: e.Width, Height: e.Height})
		m.log.Debug("viewport resized", zap.Int("width", e.Width), zap.Int("height", e.Height))
	})
}
