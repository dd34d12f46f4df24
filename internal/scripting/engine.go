// Package scripting runs Lua script components with gopher-lua.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/cacaoengine/cacao/internal/input"
	"github.com/cacaoengine/cacao/internal/scene"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM shared by every script component.
// Single-goroutine access only: scripts are created during world load and
// afterwards called from the tick goroutine, never both at once.
type Engine struct {
	vm    *lua.LState
	log   *zap.Logger
	dir   string
	input *input.State

	protos map[string]*lua.FunctionProto
	errors atomic.Uint64
	calls  atomic.Uint64
}

// NewEngine creates a Lua engine rooted at scriptsDir and loads the shared
// helpers in scriptsDir/lib.
func NewEngine(scriptsDir string, in *input.State, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:     vm,
		log:    log,
		dir:    scriptsDir,
		input:  in,
		protos: make(map[string]*lua.FunctionProto),
	}
	e.registerAPI()

	if err := e.loadDir(filepath.Join(scriptsDir, "lib")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load lib scripts: %w", err)
	}
	return e, nil
}

// loadDir runs every .lua file in dir. A missing dir is not an error.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) registerAPI() {
	in := e.vm.NewTable()
	e.vm.SetFuncs(in, map[string]lua.LGFunction{
		"key_down": func(L *lua.LState) int {
			L.Push(lua.LBool(e.input != nil && e.input.KeyDown(L.CheckInt(1))))
			return 1
		},
		"mouse_down": func(L *lua.LState) int {
			L.Push(lua.LBool(e.input != nil && e.input.MouseDown(L.CheckInt(1))))
			return 1
		},
		"cursor": func(L *lua.LState) int {
			var c input.Cursor
			if e.input != nil {
				c = e.input.Cursor()
			}
			L.Push(lua.LNumber(c.X))
			L.Push(lua.LNumber(c.Y))
			return 2
		},
	})
	e.vm.SetGlobal("input", in)

	lg := e.vm.NewTable()
	e.vm.SetFuncs(lg, map[string]lua.LGFunction{
		"info": func(L *lua.LState) int {
			e.log.Info(L.CheckString(1), zap.String("source", "lua"))
			return 0
		},
		"warn": func(L *lua.LState) int {
			e.log.Warn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		},
	})
	e.vm.SetGlobal("log", lg)
}

// proto compiles a script file once and caches the result.
func (e *Engine) proto(path string) (*lua.FunctionProto, error) {
	if p, ok := e.protos[path]; ok {
		return p, nil
	}
	full := filepath.Join(e.dir, path)
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	chunk, err := parse.Parse(f, full)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", full, err)
	}
	p, err := lua.Compile(chunk, full)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", full, err)
	}
	e.protos[path] = p
	return p, nil
}

// NewScript runs the script file, which must return a table of callbacks,
// and binds it to entity id.
func (e *Engine) NewScript(w *scene.World, id ecs.EntityID, path string) (scene.ScriptComponent, error) {
	p, err := e.proto(path)
	if err != nil {
		return nil, err
	}
	e.vm.Push(e.vm.NewFunctionFromProto(p))
	if err := e.vm.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	callbacks, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s returned %s, want a table of callbacks", path, ret.Type())
	}

	s := &Script{
		engine:    e,
		world:     w,
		entity:    id,
		path:      path,
		callbacks: callbacks,
		log:       e.log.With(zap.String("script", path), zap.String("entity", w.Path(id))),
	}
	s.self = e.newSelf(s)
	return s, nil
}

// Errors returns how many callbacks have failed.
func (e *Engine) Errors() uint64 { return e.errors.Load() }

// Calls returns how many callbacks have run.
func (e *Engine) Calls() uint64 { return e.calls.Load() }

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
