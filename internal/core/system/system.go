package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput       Phase = iota // 0: freeze input state
	PhaseFixedUpdate              // 1: fixed-step logic, repeated per tick by the accumulator
	PhaseUpdate                   // 2: script execution
	PhaseRender                   // 3: collect renderables, commit snapshot, enqueue frame
	PhasePersist                  // 4: telemetry
	PhaseCleanup                  // 5: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseFixedUpdate:
		return "fixed_update"
	case PhaseUpdate:
		return "update"
	case PhaseRender:
		return "render"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// TickReport describes a finished tick as measured by the scheduler.
type TickReport struct {
	Tick       uint64
	Timestep   time.Duration
	Work       time.Duration
	FixedSteps int
	Overrun    bool
}

// TickObserver is told about every tick once its systems have all run. It
// is called on the tick goroutine.
type TickObserver interface {
	TickDone(r TickReport)
}
