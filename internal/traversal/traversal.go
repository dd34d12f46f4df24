// Package traversal collects components from the active entity tree in
// parallel.
package traversal

import (
	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// ComponentRef is a non-owning reference to a component found during a
// traversal, with its entity's world matrix resolved.
type ComponentRef struct {
	Entity    ecs.EntityID
	Kind      scene.Kind
	Component scene.Component
	World     mgl32.Mat4
}

// Predicate selects components.
type Predicate func(scene.Component) bool

// ByKind selects enabled components of kind k.
func ByKind(k scene.Kind) Predicate {
	return func(c scene.Component) bool {
		return c.Kind() == k && c.Enabled()
	}
}

// Pool runs a batch of tasks and returns once every task has finished.
type Pool interface {
	Workers() int
	ExecuteAll(tasks []func()) error
}

// Collect walks every active subtree of w and returns the components
// matching pred. The top-level entities are split into at most
// pool.Workers() partitions. Each partition fills its own buffer; buffers
// are concatenated after the barrier, so the result order is unspecified
// but the set is the same for any pool size.
//
// w must not be mutated until Collect returns.
func Collect(w *scene.World, pool Pool, pred Predicate) ([]ComponentRef, error) {
	roots := w.Entities().Roots()
	if len(roots) == 0 {
		return nil, nil
	}
	parts := partition(roots, pool.Workers())
	buffers := make([][]ComponentRef, len(parts))
	tasks := make([]func(), len(parts))
	for i, part := range parts {
		tasks[i] = func() {
			var buf []ComponentRef
			for _, id := range part {
				buf = walk(w, id, mgl32.Ident4(), pred, buf)
			}
			buffers[i] = buf
		}
	}
	if err := pool.ExecuteAll(tasks); err != nil {
		return nil, err
	}

	n := 0
	for _, b := range buffers {
		n += len(b)
	}
	out := make([]ComponentRef, 0, n)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out, nil
}

func walk(w *scene.World, id ecs.EntityID, parent mgl32.Mat4, pred Predicate, buf []ComponentRef) []ComponentRef {
	ents := w.Entities()
	if !ents.Active(id) {
		return buf
	}
	world := parent.Mul4(w.LocalMatrix(id))
	for _, c := range w.Components(id) {
		if pred(c) {
			buf = append(buf, ComponentRef{Entity: id, Kind: c.Kind(), Component: c, World: world})
		}
	}
	for _, child := range ents.Children(id) {
		buf = walk(w, child, world, pred, buf)
	}
	return buf
}

// partition splits ids into at most n contiguous, near-equal groups.
func partition(ids []ecs.EntityID, n int) [][]ecs.EntityID {
	if n < 1 {
		n = 1
	}
	n = min(n, len(ids))
	parts := make([][]ecs.EntityID, 0, n)
	size, rem := len(ids)/n, len(ids)%n
	start := 0
	for i := range n {
		end := start + size
		if i < rem {
			end++
		}
		parts = append(parts, ids[start:end])
		start = end
	}
	return parts
}
