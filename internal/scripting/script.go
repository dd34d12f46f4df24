package scripting

import (
	"time"

	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/go-gl/mathgl/mgl32"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Script is a Lua-backed scene.ScriptComponent.
type Script struct {
	engine    *Engine
	world     *scene.World
	entity    ecs.EntityID
	path      string
	callbacks *lua.LTable
	self      *lua.LTable
	log       *zap.Logger

	Disabled bool
	failures int
}

var _ scene.ScriptComponent = (*Script)(nil)

func (s *Script) Kind() scene.Kind     { return scene.KindScript }
func (s *Script) Enabled() bool        { return !s.Disabled }
func (s *Script) Path() string         { return s.path }
func (s *Script) Entity() ecs.EntityID { return s.entity }

func (s *Script) OnStart() error { return s.call("on_start") }

func (s *Script) OnTick(dt time.Duration) error {
	return s.call("on_tick", lua.LNumber(dt.Seconds()))
}

func (s *Script) OnFixedTick(dt time.Duration) error {
	return s.call("on_fixed_tick", lua.LNumber(dt.Seconds()))
}

// call invokes a callback if the script defines it. The first failure of a
// script is logged at warn, later ones at debug.
func (s *Script) call(name string, args ...lua.LValue) error {
	fn, ok := s.callbacks.RawGetString(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	vm := s.engine.vm
	s.engine.calls.Add(1)
	err := vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, append([]lua.LValue{s.self}, args...)...)
	if err != nil {
		s.engine.errors.Add(1)
		s.failures++
		if s.failures == 1 {
			s.log.Warn("lua callback error", zap.String("callback", name), zap.Error(err))
		} else {
			s.log.Debug("lua callback error", zap.String("callback", name), zap.Int("failures", s.failures), zap.Error(err))
		}
	}
	return err
}

// newSelf builds the per-component self table. Methods ignore their
// receiver argument and act on the bound entity.
func (e *Engine) newSelf(s *Script) *lua.LTable {
	L := e.vm
	self := L.NewTable()
	self.RawSetString("name", lua.LString(s.world.EntityName(s.entity)))
	L.SetFuncs(self, map[string]lua.LGFunction{
		"position": func(L *lua.LState) int {
			t, ok := s.world.Transform(s.entity)
			if !ok {
				return 0
			}
			L.Push(lua.LNumber(t.Position.X()))
			L.Push(lua.LNumber(t.Position.Y()))
			L.Push(lua.LNumber(t.Position.Z()))
			return 3
		},
		"set_position": func(L *lua.LState) int {
			if t, ok := s.world.Transform(s.entity); ok {
				t.Position = mgl32.Vec3{
					float32(L.CheckNumber(2)),
					float32(L.CheckNumber(3)),
					float32(L.CheckNumber(4)),
				}
			}
			return 0
		},
		"rotate": func(L *lua.LState) int {
			if t, ok := s.world.Transform(s.entity); ok {
				axis := mgl32.Vec3{
					float32(L.CheckNumber(2)),
					float32(L.CheckNumber(3)),
					float32(L.CheckNumber(4)),
				}
				t.Rotate(axis, float32(L.CheckNumber(5)))
			}
			return 0
		},
		"set_active": func(L *lua.LState) int {
			s.world.Entities().SetActive(s.entity, L.ToBool(2))
			return 0
		},
		"active": func(L *lua.LState) int {
			L.Push(lua.LBool(s.world.Entities().Active(s.entity)))
			return 1
		},
		"destroy": func(L *lua.LState) int {
			s.world.Entities().MarkForDestruction(s.entity)
			return 0
		},
	})
	return self
}
