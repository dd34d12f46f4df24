package ecs

import "iter"

// Removable is a store the World purges when an entity is destroyed.
// Register every store with World.RegisterStore.
type Removable interface {
	Remove(id EntityID)
}

// Store maps entities to values of one type. The store owns the pointed-to
// values: callers may mutate through a pointer from Get, but must not keep it
// past the tick, since FlushDestroyQueue drops the entry and a recycled
// EntityID carries a new generation.
//
// Only the tick goroutine writes. Worker goroutines may read during a
// traversal because the tick goroutine is parked on the pool barrier until
// every reader returns.
type Store[T any] struct {
	entries map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{entries: make(map[EntityID]*T, 256)}
}

// Set stores v for id, replacing any earlier value.
func (s *Store[T]) Set(id EntityID, v *T) { s.entries[id] = v }

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	v, ok := s.entries[id]
	return v, ok
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.entries[id]
	return ok
}

func (s *Store[T]) Remove(id EntityID) { delete(s.entries, id) }

func (s *Store[T]) Len() int { return len(s.entries) }

// All yields entries in no particular order. Set and Remove must not be
// called while iterating.
func (s *Store[T]) All() iter.Seq2[EntityID, *T] {
	return func(yield func(EntityID, *T) bool) {
		for id, v := range s.entries {
			if !yield(id, v) {
				return
			}
		}
	}
}
