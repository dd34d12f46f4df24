package system

import (
	"time"

	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/persist"
	"github.com/cacaoengine/cacao/internal/render"
)

// SampleRecorder accepts one sample per tick without blocking.
type SampleRecorder interface {
	Record(s persist.TickSample)
}

// TelemetrySystem records a tick sample every tick. Phase 4 (Persist).
//
// Update captures the frame-side numbers while the tick is still running;
// the sample is completed and recorded in TickDone, once the scheduler has
// measured the same tick.
type TelemetrySystem struct {
	frames   *render.Queue
	commit   *FrameCommitSystem
	recorder SampleRecorder
	now      func() time.Time

	pending    persist.TickSample
	hasPending bool
}

var _ coresys.TickObserver = (*TelemetrySystem)(nil)

func NewTelemetrySystem(frames *render.Queue, commit *FrameCommitSystem, recorder SampleRecorder) *TelemetrySystem {
	return &TelemetrySystem{
		frames:   frames,
		commit:   commit,
		recorder: recorder,
		now:      time.Now,
	}
}

func (s *TelemetrySystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *TelemetrySystem) Update(_ time.Duration) {
	s.pending = persist.TickSample{
		At:       s.now(),
		QueueLen: s.frames.Len(),
		Dropped:  s.frames.Dropped(),
		Commands: s.commit.LastCommands(),
	}
	s.hasPending = true
}

// TickDone completes the sample captured by Update with the scheduler's
// measurements and records it.
func (s *TelemetrySystem) TickDone(r coresys.TickReport) {
	if !s.hasPending {
		return
	}
	sample := s.pending
	sample.Tick = r.Tick
	sample.Timestep = r.Timestep
	sample.Work = r.Work
	sample.FixedSteps = r.FixedSteps
	sample.Overrun = r.Overrun
	s.hasPending = false
	s.recorder.Record(sample)
}
