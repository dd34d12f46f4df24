package event

// Window events, emitted by the window backend during its update on the
// GPU-affine thread.

type WindowResized struct {
	Width  int
	Height int
}

type WindowClosed struct{}

// Input events.

type KeyDown struct{ Key int }

type KeyUp struct{ Key int }

type MouseMoved struct{ X, Y float64 }

type MousePressed struct{ Button int }

type MouseReleased struct{ Button int }
