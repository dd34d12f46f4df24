// Package input keeps a per-tick frozen view of keyboard and mouse state.
//
// Window events update a pending delta log from the GPU-affine thread.
// Freeze, called once per tick before scripts run, applies the pending
// deltas so every script in that tick observes the same input.
package input

import (
	"sync"

	"github.com/cacaoengine/cacao/internal/core/event"
)

type deltaKind uint8

const (
	deltaKey deltaKind = iota
	deltaMouse
)

type delta struct {
	kind deltaKind
	code int
	down bool
}

// Cursor is a window-space cursor position.
type Cursor struct{ X, Y float64 }

// State holds the frozen input view. Query methods read only the frozen
// view and are meant for the tick goroutine.
type State struct {
	mu        sync.Mutex // guards pending and cursorTmp
	pending   []delta
	cursorTmp Cursor

	keys   map[int]bool
	mouse  map[int]bool
	cursor Cursor
	frames uint64
}

func NewState() *State {
	return &State{
		pending: make([]delta, 0, 32),
		keys:    make(map[int]bool, 64),
		mouse:   make(map[int]bool, 8),
	}
}

// Subscribe wires the state to the bus's input events.
func (s *State) Subscribe(b *event.Bus) {
	event.Subscribe(b, func(e event.KeyDown) { s.record(delta{deltaKey, e.Key, true}) })
	event.Subscribe(b, func(e event.KeyUp) { s.record(delta{deltaKey, e.Key, false}) })
	event.Subscribe(b, func(e event.MousePressed) { s.record(delta{deltaMouse, e.Button, true}) })
	event.Subscribe(b, func(e event.MouseReleased) { s.record(delta{deltaMouse, e.Button, false}) })
	event.Subscribe(b, func(e event.MouseMoved) {
		s.mu.Lock()
		s.cursorTmp = Cursor{X: e.X, Y: e.Y}
		s.mu.Unlock()
	})
}

func (s *State) record(d delta) {
	s.mu.Lock()
	s.pending = append(s.pending, d)
	s.mu.Unlock()
}

// Freeze applies every delta recorded since the previous Freeze, in arrival order.
func (s *State) Freeze() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make([]delta, 0, cap(pending))
	s.cursor = s.cursorTmp
	s.mu.Unlock()

	for _, d := range pending {
		switch d.kind {
		case deltaKey:
			s.keys[d.code] = d.down
		case deltaMouse:
			s.mouse[d.code] = d.down
		}
	}
	s.frames++
}

func (s *State) KeyDown(key int) bool      { return s.keys[key] }
func (s *State) MouseDown(button int) bool { return s.mouse[button] }
func (s *State) Cursor() Cursor            { return s.cursor }

// Frozen returns how many times Freeze has run.
func (s *State) Frozen() uint64 { return s.frames }
