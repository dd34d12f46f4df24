package gpu

import (
	"context"
	"errors"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/render"
)

// ErrDeviceLost is returned (wrapped) by a backend whose context is gone.
// It is the one draw error that stops the executor loop.
var ErrDeviceLost = errors.New("gpu device lost")

// Backend is the concrete graphics API. Every method is called on the
// GPU-affine goroutine.
type Backend interface {
	asset.Backend

	Init() error
	Draw(f *render.Frame) error
	Present() error
	// WaitIdle blocks until no submitted work is in flight.
	WaitIdle(ctx context.Context) error
	Shutdown() error
}

// EventSink receives window and input events.
type EventSink interface {
	Publish(ev any)
}

// Window is the platform window. PollEvents is called on the GPU-affine
// goroutine once per loop iteration.
type Window interface {
	PollEvents(sink EventSink)
	Size() (width, height int)
}
