package system

import (
	"time"

	"github.com/cacaoengine/cacao/internal/core/ecs"
	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/cacaoengine/cacao/internal/traversal"
	"go.uber.org/zap"
)

// ActiveScripts is the set of script components reachable through active
// entities this tick. It is refreshed once per tick in the input phase and
// shared by the fixed and dynamic script systems.
type ActiveScripts struct {
	worlds *scene.Manager
	pool   traversal.Pool
	log    *zap.Logger

	world   *scene.World
	refs    []traversal.ComponentRef
	started map[scene.ScriptComponent]ecs.EntityID // OnStart has run; pruned once the entity dies
}

func NewActiveScripts(worlds *scene.Manager, pool traversal.Pool, log *zap.Logger) *ActiveScripts {
	return &ActiveScripts{
		worlds:  worlds,
		pool:    pool,
		log:     log,
		started: make(map[scene.ScriptComponent]ecs.EntityID, 64),
	}
}

func (a *ActiveScripts) Phase() coresys.Phase { return coresys.PhaseInput }

// Update collects the tick's scripts. Registered after InputSystem.
func (a *ActiveScripts) Update(_ time.Duration) {
	w := a.worlds.Active()
	if w != a.world {
		clear(a.started) // a new world starts every script afresh
		a.world = w
	}
	a.refs = a.refs[:0]
	if w == nil {
		return
	}
	for sc, id := range a.started {
		if !w.Entities().Alive(id) {
			delete(a.started, sc)
		}
	}
	refs, err := traversal.Collect(w, a.pool, traversal.ByKind(scene.KindScript))
	if err != nil {
		a.log.Error("script traversal failed", zap.Error(err))
		return
	}
	a.refs = refs
}

// Len returns the number of scripts collected this tick.
func (a *ActiveScripts) Len() int { return len(a.refs) }

// Started returns how many live scripts have had OnStart run.
func (a *ActiveScripts) Started() int { return len(a.started) }

// each calls fn for every collected script, running OnStart first for
// scripts seen for the first time.
func (a *ActiveScripts) each(fn func(sc scene.ScriptComponent) error) (failed int) {
	for _, ref := range a.refs {
		sc, ok := ref.Component.(scene.ScriptComponent)
		if !ok {
			continue
		}
		if _, ok := a.started[sc]; !ok {
			a.started[sc] = ref.Entity
			if err := sc.OnStart(); err != nil {
				failed++
				continue
			}
		}
		if err := fn(sc); err != nil {
			failed++
		}
	}
	return failed
}

// ScriptSystem runs on_tick for every active script. Phase 2 (Update).
// Scripts share one Lua VM, so they run sequentially on the tick goroutine.
type ScriptSystem struct {
	active *ActiveScripts
	log    *zap.Logger
	runs   uint64
	errors uint64
}

func NewScriptSystem(active *ActiveScripts, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{active: active, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(dt time.Duration) {
	s.runs++
	s.errors += uint64(s.active.each(func(sc scene.ScriptComponent) error {
		return sc.OnTick(dt)
	}))
}

// Errors returns how many script callbacks have failed.
func (s *ScriptSystem) Errors() uint64 { return s.errors }

// FixedScriptSystem runs on_fixed_tick. Phase 1 (FixedUpdate), repeated per
// fixed step.
type FixedScriptSystem struct {
	active *ActiveScripts
	steps  uint64
	errors uint64
}

func NewFixedScriptSystem(active *ActiveScripts) *FixedScriptSystem {
	return &FixedScriptSystem{active: active}
}

func (s *FixedScriptSystem) Phase() coresys.Phase { return coresys.PhaseFixedUpdate }

func (s *FixedScriptSystem) Update(dt time.Duration) {
	s.steps++
	s.errors += uint64(s.active.each(func(sc scene.ScriptComponent) error {
		return sc.OnFixedTick(dt)
	}))
}

// Steps returns how many fixed steps have run.
func (s *FixedScriptSystem) Steps() uint64 { return s.steps }
