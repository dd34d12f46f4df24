package input

import (
	"testing"

	"github.com/cacaoengine/cacao/internal/core/event"
)

func TestState_FreezeAppliesDeltas(t *testing.T) {
	bus := event.NewBus()
	s := NewState()
	s.Subscribe(bus)

	event.Emit(bus, event.KeyDown{Key: 65})
	event.Emit(bus, event.MousePressed{Button: 1})
	event.Emit(bus, event.MouseMoved{X: 3, Y: 4})
	bus.Flush()

	if s.KeyDown(65) {
		t.Fatal("key visible before Freeze")
	}

	s.Freeze()
	if !s.KeyDown(65) || !s.MouseDown(1) {
		t.Error("deltas not applied by Freeze")
	}
	if c := s.Cursor(); c.X != 3 || c.Y != 4 {
		t.Errorf("Cursor() = %+v, want {3 4}", c)
	}
}

func TestState_FrozenViewIsStableWithinTick(t *testing.T) {
	bus := event.NewBus()
	s := NewState()
	s.Subscribe(bus)

	event.Emit(bus, event.KeyDown{Key: 1})
	bus.Flush()
	s.Freeze()

	event.Emit(bus, event.KeyUp{Key: 1})
	bus.Flush()
	if !s.KeyDown(1) {
		t.Error("release leaked into the frozen view before next Freeze")
	}

	s.Freeze()
	if s.KeyDown(1) {
		t.Error("release not applied on next Freeze")
	}
	if s.Frozen() != 2 {
		t.Errorf("Frozen() = %d, want 2", s.Frozen())
	}
}

func TestState_PressAndReleaseSameTick(t *testing.T) {
	bus := event.NewBus()
	s := NewState()
	s.Subscribe(bus)

	event.Emit(bus, event.KeyDown{Key: 9})
	event.Emit(bus, event.KeyUp{Key: 9})
	bus.Flush()
	s.Freeze()

	if s.KeyDown(9) {
		t.Error("last delta should win")
	}
}
