package depot

// sparseSet is the type-erased view of one sparse-stored component. Values
// are packed densely and found through an entity-index lookup table, so
// inserting or removing one never touches the entity's archetype row.
type sparseSet interface {
	len() int
	contains(index uint32) bool
	// insert stores v for index, replacing and stamping any previous value.
	insert(index uint32, v any, ticks ComponentTicks)
	replace(index uint32, v any, tick Tick)
	remove(index uint32, drop bool)
	ticksAt(index uint32) *ComponentTicks
	checkTicks(now Tick)
}

type typedSparseSet[T any] struct {
	// sparse maps an entity index to its dense slot plus one. Zero is empty.
	sparse   []uint32
	entities []uint32
	data     []T
	ticks    []ComponentTicks
}

var _ sparseSet = &typedSparseSet[struct{}]{}

func (s *typedSparseSet[T]) len() int {
	return len(s.data)
}

func (s *typedSparseSet[T]) slot(index uint32) (int, bool) {
	if int(index) >= len(s.sparse) || s.sparse[index] == 0 {
		return 0, false
	}
	return int(s.sparse[index] - 1), true
}

func (s *typedSparseSet[T]) contains(index uint32) bool {
	_, ok := s.slot(index)
	return ok
}

func (s *typedSparseSet[T]) insert(index uint32, v any, ticks ComponentTicks) {
	if slot, ok := s.slot(index); ok {
		s.data[slot] = v.(T)
		s.ticks[slot] = ticks
		return
	}
	if int(index) >= len(s.sparse) {
		s.sparse = append(s.sparse, make([]uint32, int(index)+1-len(s.sparse))...)
	}
	s.entities = append(s.entities, index)
	s.data = append(s.data, v.(T))
	s.ticks = append(s.ticks, ticks)
	s.sparse[index] = uint32(len(s.data))
}

func (s *typedSparseSet[T]) replace(index uint32, v any, tick Tick) {
	slot, ok := s.slot(index)
	if !ok {
		s.insert(index, v, newComponentTicks(tick))
		return
	}
	s.data[slot] = v.(T)
	s.ticks[slot].Changed = tick
}

func (s *typedSparseSet[T]) remove(index uint32, drop bool) {
	slot, ok := s.slot(index)
	if !ok {
		return
	}
	if drop {
		dropValue(&s.data[slot])
	}
	last := len(s.data) - 1
	if slot != last {
		moved := s.entities[last]
		s.entities[slot] = moved
		s.data[slot] = s.data[last]
		s.ticks[slot] = s.ticks[last]
		s.sparse[moved] = uint32(slot + 1)
	}
	var zero T
	s.data[last] = zero
	s.data = s.data[:last]
	s.ticks = s.ticks[:last]
	s.entities = s.entities[:last]
	s.sparse[index] = 0
}

func (s *typedSparseSet[T]) get(index uint32) *T {
	slot, ok := s.slot(index)
	if !ok {
		return nil
	}
	return &s.data[slot]
}

func (s *typedSparseSet[T]) ticksAt(index uint32) *ComponentTicks {
	slot, ok := s.slot(index)
	if !ok {
		return nil
	}
	return &s.ticks[slot]
}

func (s *typedSparseSet[T]) checkTicks(now Tick) {
	for i := range s.ticks {
		s.ticks[i].checkTicks(now)
	}
}

// sparseSets holds one set per sparse component id, created on first use.
type sparseSets struct {
	sets []sparseSet
}

func (ss *sparseSets) get(id ComponentID) sparseSet {
	if int(id) >= len(ss.sets) {
		return nil
	}
	return ss.sets[id]
}

func (ss *sparseSets) getOrCreate(info *componentInfo) sparseSet {
	for int(info.id) >= len(ss.sets) {
		ss.sets = append(ss.sets, nil)
	}
	if ss.sets[info.id] == nil {
		ss.sets[info.id] = info.newSparse()
	}
	return ss.sets[info.id]
}

func (ss *sparseSets) checkTicks(now Tick) {
	for _, s := range ss.sets {
		if s != nil {
			s.checkTicks(now)
		}
	}
}
