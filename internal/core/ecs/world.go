package ecs

import (
	"slices"

	"github.com/cacaoengine/cacao/internal/core/errs"
)

// node is the arena slot for one entity. Parent links are indices into the
// arena (an EntityID), never references, so orphaned subtrees cannot form
// ownership cycles.
type node struct {
	id       EntityID
	parent   EntityID
	children []EntityID
	active   bool
}

// World is the entity arena. It owns the entity pool, the parent/child
// hierarchy, the registered component stores, and a deferred destruction
// queue flushed by the cleanup system at tick end.
//
// World is owned by the tick goroutine. Read-only access from traversal
// workers is safe only while the tick goroutine is blocked on the traversal
// barrier.
type World struct {
	pool         *EntityPool
	nodes        []node // indexed by EntityID.Index()
	roots        []EntityID
	stores       []Removable
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		nodes:        make([]node, 0, 1024),
		roots:        make([]EntityID, 0, 64),
		stores:       make([]Removable, 0, 8),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

// RegisterStore adds a component store so destroyed entities are removed from it.
func (w *World) RegisterStore(store Removable) {
	w.stores = append(w.stores, store)
}

// CreateEntity allocates an active entity under parent. Pass None for a root.
func (w *World) CreateEntity(parent EntityID) (EntityID, error) {
	if !parent.IsNone() && !w.Alive(parent) {
		return None, errs.New(errs.BadState, "ecs.CreateEntity", "parent %d is not alive", parent)
	}
	id := w.pool.Create()
	idx := int(id.Index())
	for len(w.nodes) <= idx {
		w.nodes = append(w.nodes, node{})
	}
	w.nodes[idx] = node{id: id, parent: None, active: true}
	w.attach(id, parent)
	return id, nil
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

func (w *World) lookup(id EntityID) *node {
	if !w.pool.Alive(id) {
		return nil
	}
	return &w.nodes[id.Index()]
}

// Parent returns the entity's parent, or None for roots and dead entities.
func (w *World) Parent(id EntityID) EntityID {
	if n := w.lookup(id); n != nil {
		return n.parent
	}
	return None
}

// Children returns the entity's direct children. The slice is owned by the
// world and must not be modified.
func (w *World) Children(id EntityID) []EntityID {
	if n := w.lookup(id); n != nil {
		return n.children
	}
	return nil
}

// Roots returns the top-level entities. The slice is owned by the world.
func (w *World) Roots() []EntityID {
	return w.roots
}

// SetActive toggles the entity's own active flag. An active entity under an
// inactive ancestor is still skipped by traversal.
func (w *World) SetActive(id EntityID, active bool) {
	if n := w.lookup(id); n != nil {
		n.active = active
	}
}

// Active reports the entity's own flag, not its effective state.
func (w *World) Active(id EntityID) bool {
	if n := w.lookup(id); n != nil {
		return n.active
	}
	return false
}

// SetParent moves id under parent (None makes it a root). Reparenting under
// one of its own descendants is rejected.
func (w *World) SetParent(id, parent EntityID) error {
	n := w.lookup(id)
	if n == nil {
		return errs.New(errs.BadState, "ecs.SetParent", "entity %d is not alive", id)
	}
	if !parent.IsNone() {
		if !w.Alive(parent) {
			return errs.New(errs.BadState, "ecs.SetParent", "parent %d is not alive", parent)
		}
		for p := parent; !p.IsNone(); p = w.nodes[p.Index()].parent {
			if p == id {
				return errs.New(errs.BadState, "ecs.SetParent", "entity %d cannot be its own ancestor", id)
			}
		}
	}
	w.detach(id)
	w.attach(id, parent)
	return nil
}

func (w *World) attach(id, parent EntityID) {
	w.nodes[id.Index()].parent = parent
	if parent.IsNone() {
		w.roots = append(w.roots, id)
		return
	}
	p := &w.nodes[parent.Index()]
	p.children = append(p.children, id)
}

func (w *World) detach(id EntityID) {
	parent := w.nodes[id.Index()].parent
	if parent.IsNone() {
		w.roots = removeID(w.roots, id)
		return
	}
	if p := w.lookup(parent); p != nil {
		p.children = removeID(p.children, id)
	}
}

func removeID(ids []EntityID, id EntityID) []EntityID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// Len returns the number of live entities.
func (w *World) Len() int { return w.pool.Len() }

// MarkForDestruction queues an entity (and its subtree) for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued subtrees and clears their components.
// Called by the cleanup system at the end of each tick.
func (w *World) FlushDestroyQueue() int {
	destroyed := 0
	for _, id := range w.destroyQueue {
		if !w.Alive(id) {
			continue // queued twice or already removed with an ancestor
		}
		w.detach(id)
		destroyed += w.destroySubtree(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return destroyed
}

func (w *World) destroySubtree(id EntityID) int {
	n := &w.nodes[id.Index()]
	children := n.children
	n.children = nil
	count := 1
	for _, c := range children {
		count += w.destroySubtree(c)
	}
	for _, s := range w.stores {
		s.Remove(id)
	}
	w.pool.Destroy(id)
	w.nodes[id.Index()] = node{}
	return count
}
