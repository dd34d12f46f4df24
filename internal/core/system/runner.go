package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Registration order is
// preserved within a phase. Not safe for concurrent use; it belongs to the
// tick goroutine.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs one tick: every phase in order, with PhaseFixedUpdate repeated
// fixedSteps times at fixedDt (zero steps skips it).
func (r *Runner) Tick(dt time.Duration, fixedSteps int, fixedDt time.Duration) {
	r.ensureSorted()
	for i := 0; i < len(r.systems); {
		phase := r.systems[i].Phase()
		j := i
		for j < len(r.systems) && r.systems[j].Phase() == phase {
			j++
		}
		if phase == PhaseFixedUpdate {
			for range fixedSteps {
				for _, s := range r.systems[i:j] {
					s.Update(fixedDt)
				}
			}
		} else {
			for _, s := range r.systems[i:j] {
				s.Update(dt)
			}
		}
		i = j
	}
}

// TickPhase runs only the systems registered for phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Len returns the number of registered systems.
func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
