package depot

import (
	"fmt"
	"sync"
)

// Entity is a generation-checked handle to a row somewhere in storage.
// The zero Entity never refers to a live entity.
type Entity struct {
	Index      uint32
	Generation uint32
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index, e.Generation)
}

// IsZero reports whether e is the null entity.
func (e Entity) IsZero() bool {
	return e.Generation == 0
}

// TableRow is a position inside an archetype table. It stays valid until the
// row is swap-removed.
type TableRow uint32

// EntityLocation points at the archetype and row currently holding an entity.
type EntityLocation struct {
	Archetype ArchetypeID
	Row       TableRow
}

type entityMeta struct {
	generation uint32
	alive      bool
	location   EntityLocation
}

// entityAllocator hands out entity indices and tracks their locations.
// reserve may run concurrently with reads of metas; everything else is
// single-threaded.
type entityAllocator struct {
	metas []entityMeta
	free  []uint32

	mu           sync.Mutex
	reserved     []Entity
	reservedFree int
}

func newEntityAllocator() entityAllocator {
	return entityAllocator{}
}

func (a *entityAllocator) alloc() Entity {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		m := &a.metas[idx]
		m.alive = true
		return Entity{Index: idx, Generation: m.generation}
	}
	idx := uint32(len(a.metas))
	a.metas = append(a.metas, entityMeta{generation: 1, alive: true})
	return Entity{Index: idx, Generation: 1}
}

// reserve returns an entity id that becomes live at the next flush.
func (a *entityAllocator) reserve() Entity {
	a.mu.Lock()
	defer a.mu.Unlock()

	var e Entity
	if avail := len(a.free) - a.reservedFree; avail > 0 {
		idx := a.free[avail-1]
		a.reservedFree++
		e = Entity{Index: idx, Generation: a.metas[idx].generation}
	} else {
		pendingNew := len(a.reserved) - a.reservedFree
		e = Entity{Index: uint32(len(a.metas) + pendingNew), Generation: 1}
	}
	a.reserved = append(a.reserved, e)
	return e
}

// flushReserved makes every reserved entity live and calls place for each so
// the storage can give it a location.
func (a *entityAllocator) flushReserved(place func(Entity)) {
	a.mu.Lock()
	reserved := a.reserved
	fromFree := a.reservedFree
	a.reserved = nil
	a.reservedFree = 0
	a.mu.Unlock()

	if len(reserved) == 0 {
		return
	}
	a.free = a.free[:len(a.free)-fromFree]
	for _, e := range reserved {
		for int(e.Index) >= len(a.metas) {
			a.metas = append(a.metas, entityMeta{generation: 1})
		}
		a.metas[e.Index].alive = true
		place(e)
	}
}

func (a *entityAllocator) release(e Entity) {
	m := &a.metas[e.Index]
	m.alive = false
	m.generation++
	if m.generation == 0 {
		m.generation = 1
	}
	m.location = EntityLocation{}
	a.free = append(a.free, e.Index)
}

func (a *entityAllocator) contains(e Entity) bool {
	if int(e.Index) >= len(a.metas) {
		return false
	}
	m := a.metas[e.Index]
	return m.alive && m.generation == e.Generation
}

func (a *entityAllocator) location(e Entity) (EntityLocation, bool) {
	if !a.contains(e) {
		return EntityLocation{}, false
	}
	return a.metas[e.Index].location, true
}

func (a *entityAllocator) setLocation(e Entity, loc EntityLocation) {
	a.metas[e.Index].location = loc
}

func (a *entityAllocator) len() int {
	return len(a.metas) - len(a.free)
}
