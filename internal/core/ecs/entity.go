package ecs

// EntityID packs a slot index (low 32 bits) and the slot's generation (high
// 32 bits). Generations start at 1, so None is never handed out and a stale
// ID stops resolving as soon as its slot is reused.
type EntityID uint64

// None is the "no entity" sentinel. A node whose parent is None is a root.
const None EntityID = 0

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsNone() bool       { return id == None }

type slot struct {
	gen   uint32
	alive bool
}

// EntityPool is the ID arena: a slot table plus a LIFO free list.
type EntityPool struct {
	slots []slot
	free  []uint32
	live  int
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		slots: make([]slot, 0, 256),
		free:  make([]uint32, 0, 64),
	}
}

func (p *EntityPool) Create() EntityID {
	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, slot{gen: 1})
	}
	p.slots[idx].alive = true
	p.live++
	return NewEntityID(idx, p.slots[idx].gen)
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if id.IsNone() || int(idx) >= len(p.slots) {
		return false
	}
	s := p.slots[idx]
	return s.alive && s.gen == id.Generation()
}

// Destroy retires id. Stale or unknown IDs are ignored.
func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return
	}
	s := &p.slots[id.Index()]
	s.alive = false
	if s.gen++; s.gen == 0 {
		s.gen = 1
	}
	p.free = append(p.free, id.Index())
	p.live--
}

// Len returns the number of live IDs.
func (p *EntityPool) Len() int { return p.live }
