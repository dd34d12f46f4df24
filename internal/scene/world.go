// Package scene holds the live world: the entity tree, per-entity
// transforms and components, and the active camera.
//
// A World is owned by the tick goroutine. Traversal workers read it only
// while the tick goroutine waits on the traversal barrier; the GPU goroutine
// never touches it and sees committed snapshots instead.
package scene

import (
	"iter"

	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

type componentList struct {
	items []Component
}

// World is one loaded area of gameplay.
type World struct {
	Name string

	entities   *ecs.World
	names      *ecs.Store[string]
	transforms *ecs.Store[Transform]
	components *ecs.Store[componentList]

	camera *Camera
	skybox *Skybox
}

func NewWorld(name string) *World {
	w := &World{
		Name:       name,
		entities:   ecs.NewWorld(),
		names:      ecs.NewStore[string](),
		transforms: ecs.NewStore[Transform](),
		components: ecs.NewStore[componentList](),
		camera:     NewCamera(),
	}
	w.entities.RegisterStore(w.names)
	w.entities.RegisterStore(w.transforms)
	w.entities.RegisterStore(w.components)
	return w
}

// Entities exposes the underlying arena for hierarchy queries.
func (w *World) Entities() *ecs.World { return w.entities }

// NewEntity creates an active, named entity with an identity transform.
func (w *World) NewEntity(name string, parent ecs.EntityID) (ecs.EntityID, error) {
	id, err := w.entities.CreateEntity(parent)
	if err != nil {
		return ecs.None, err
	}
	w.names.Set(id, &name)
	t := Identity()
	w.transforms.Set(id, &t)
	w.components.Set(id, &componentList{})
	return id, nil
}

func (w *World) EntityName(id ecs.EntityID) string {
	if n, ok := w.names.Get(id); ok {
		return *n
	}
	return ""
}

// Path returns the slash-separated names from the root down to id.
func (w *World) Path(id ecs.EntityID) string {
	path := w.EntityName(id)
	for p := w.entities.Parent(id); !p.IsNone(); p = w.entities.Parent(p) {
		path = w.EntityName(p) + "/" + path
	}
	return path
}

// Transform returns the entity's mutable local transform.
func (w *World) Transform(id ecs.EntityID) (*Transform, bool) {
	return w.transforms.Get(id)
}

// LocalMatrix returns the entity's local matrix, identity if it has none.
func (w *World) LocalMatrix(id ecs.EntityID) mgl32.Mat4 {
	if t, ok := w.transforms.Get(id); ok {
		return t.Matrix()
	}
	return mgl32.Ident4()
}

// WorldMatrix composes local matrices from the root down to id.
func (w *World) WorldMatrix(id ecs.EntityID) mgl32.Mat4 {
	m := w.LocalMatrix(id)
	for p := w.entities.Parent(id); !p.IsNone(); p = w.entities.Parent(p) {
		m = w.LocalMatrix(p).Mul4(m)
	}
	return m
}

func (w *World) AddComponent(id ecs.EntityID, c Component) bool {
	list, ok := w.components.Get(id)
	if !ok {
		return false
	}
	list.items = append(list.items, c)
	return true
}

// Components returns the entity's components. The slice is owned by the world.
func (w *World) Components(id ecs.EntityID) []Component {
	if list, ok := w.components.Get(id); ok {
		return list.items
	}
	return nil
}

// Scripts iterates every script component in the world regardless of
// activity, in unspecified order.
func (w *World) Scripts() iter.Seq2[ecs.EntityID, ScriptComponent] {
	return func(yield func(ecs.EntityID, ScriptComponent) bool) {
		for id, list := range w.components.All() {
			for _, c := range list.items {
				if sc, ok := c.(ScriptComponent); ok {
					if !yield(id, sc) {
						return
					}
				}
			}
		}
	}
}

// Meshes iterates every mesh component in the world, in unspecified order.
func (w *World) Meshes() iter.Seq2[ecs.EntityID, *MeshComponent] {
	return func(yield func(ecs.EntityID, *MeshComponent) bool) {
		for id, list := range w.components.All() {
			for _, c := range list.items {
				if mc, ok := c.(*MeshComponent); ok {
					if !yield(id, mc) {
						return
					}
				}
			}
		}
	}
}

// EffectivelyActive reports whether id and every one of its ancestors is active.
func (w *World) EffectivelyActive(id ecs.EntityID) bool {
	for e := id; !e.IsNone(); e = w.entities.Parent(e) {
		if !w.entities.Active(e) {
			return false
		}
	}
	return w.entities.Alive(id)
}

func (w *World) Camera() *Camera { return w.camera }

func (w *World) SetCamera(c *Camera) { w.camera = c }

// Skybox returns the optional skybox, nil when the world has none.
func (w *World) Skybox() *Skybox { return w.skybox }

func (w *World) SetSkybox(s *Skybox) { w.skybox = s }
