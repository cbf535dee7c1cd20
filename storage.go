package depot

import (
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/TheBitDrifter/mask"
)

// Storage owns every entity, archetype and resource of one world.
//
// Structural changes (spawn, insert, remove, despawn) are single-threaded and
// return LockedStorageError while a schedule is executing systems; systems
// express them through Commands instead.
type Storage struct {
	locked     atomic.Bool
	entities   entityAllocator
	archetypes archetypes
	resources  resources
	sparse     sparseSets
	removed    removals
	events     []eventUpdater

	changeTick     atomic.Uint32
	lastChangeTick Tick
	lastCheckTick  Tick

	// pinnedTick, when set, stamps direct writes instead of the clock. It is
	// set while an exclusive system runs so its writes carry its run tick.
	pinnedTick Tick
	pinned     bool
}

func newStorage() *Storage {
	sto := &Storage{
		entities:   newEntityAllocator(),
		archetypes: newArchetypes(),
	}
	sto.changeTick.Store(1)
	return sto
}

// ChangeTick returns the current value of the change clock.
func (sto *Storage) ChangeTick() Tick {
	return Tick(sto.changeTick.Load())
}

// LastChangeTick returns the change tick recorded at the end of the most
// recent schedule pass.
func (sto *Storage) LastChangeTick() Tick {
	return sto.lastChangeTick
}

// incrementChangeTick advances the clock and returns the value it held before.
func (sto *Storage) incrementChangeTick() Tick {
	return Tick(sto.changeTick.Add(1) - 1)
}

// writeTick is the tick direct writes are stamped with.
func (sto *Storage) writeTick() Tick {
	if sto.pinned {
		return sto.pinnedTick
	}
	return sto.ChangeTick()
}

func (sto *Storage) pinTick(t Tick) {
	sto.pinnedTick, sto.pinned = t, true
}

func (sto *Storage) unpinTick() {
	sto.pinnedTick, sto.pinned = 0, false
}

func (sto *Storage) Locked() bool {
	return sto.locked.Load()
}

func (sto *Storage) Lock() {
	sto.locked.Store(true)
}

func (sto *Storage) Unlock() {
	sto.locked.Store(false)
}

// Len returns the number of live entities.
func (sto *Storage) Len() int {
	return sto.entities.len()
}

// ArchetypeCount returns how many archetypes exist, including the empty one.
func (sto *Storage) ArchetypeCount() int {
	return len(sto.archetypes.asSlice)
}

// Archetype returns the archetype with the given id.
func (sto *Storage) Archetype(id ArchetypeID) (Archetype, bool) {
	if int(id) >= len(sto.archetypes.asSlice) {
		return nil, false
	}
	return sto.archetypes.get(id), true
}

// Contains reports whether e is live.
func (sto *Storage) Contains(e Entity) bool {
	return sto.entities.contains(e)
}

// Location returns where e is stored.
func (sto *Storage) Location(e Entity) (EntityLocation, bool) {
	return sto.entities.location(e)
}

// ComponentsOf returns the component ids e currently owns.
func (sto *Storage) ComponentsOf(e Entity) ([]ComponentID, bool) {
	loc, ok := sto.entities.location(e)
	if !ok {
		return nil, false
	}
	return sto.archetypes.get(loc.Archetype).Components(), true
}

type bundle struct {
	ids    []ComponentID
	infos  []*componentInfo
	values []any
	mask   mask.Mask
}

// bundleOf resolves the component ids of values, rejecting duplicates and
// unregistered types.
func bundleOf(values []any) (bundle, error) {
	b := bundle{
		ids:    make([]ComponentID, len(values)),
		infos:  make([]*componentInfo, len(values)),
		values: values,
	}
	for i, v := range values {
		typ := reflect.TypeOf(v)
		info, ok := componentInfoFor(typ)
		if !ok {
			return bundle{}, UnregisteredComponentError{Type: typ}
		}
		if slices.Contains(b.ids[:i], info.id) {
			return bundle{}, DuplicateComponentError{Type: typ}
		}
		b.ids[i] = info.id
		b.infos[i] = info
	}
	b.mask = maskOf(b.ids)
	return b, nil
}

func (b bundle) valueFor(id ComponentID) (any, bool) {
	for i, bid := range b.ids {
		if bid == id {
			return b.values[i], true
		}
	}
	return nil, false
}

// Spawn creates an entity holding components. Every component type must have
// been registered with FactoryNewComponent or FactoryNewSparseComponent
// first; unregistered types fail with UnregisteredComponentError.
func (sto *Storage) Spawn(components ...any) (Entity, error) {
	if sto.Locked() {
		return Entity{}, LockedStorageError{}
	}
	b, err := bundleOf(components)
	if err != nil {
		return Entity{}, err
	}
	sto.flushReserved()
	e := sto.entities.alloc()
	sto.spawnAt(e, b)
	return e, nil
}

// SpawnBatch creates n entities sharing the same component values.
func (sto *Storage) SpawnBatch(n int, components ...any) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	b, err := bundleOf(components)
	if err != nil {
		return nil, err
	}
	sto.flushReserved()
	target := sto.archetypes.insertTarget(sto.archetypes.get(emptyArchetype), b.mask, b.ids)
	target.table.reserve(n)
	entities := make([]Entity, n)
	for i := range entities {
		entities[i] = sto.entities.alloc()
		sto.spawnAt(entities[i], b)
	}
	return entities, nil
}

func (sto *Storage) spawnAt(e Entity, b bundle) {
	target := sto.archetypes.insertTarget(sto.archetypes.get(emptyArchetype), b.mask, b.ids)
	ticks := newComponentTicks(sto.writeTick())
	for i, id := range target.table.ids {
		v, _ := b.valueFor(id)
		target.table.columns[i].push(v, ticks)
	}
	for i, info := range b.infos {
		if info.kind == SparseStorage {
			sto.sparse.getOrCreate(info).insert(e.Index, b.values[i], ticks)
		}
	}
	row := TableRow(len(target.table.entities))
	target.table.entities = append(target.table.entities, e)
	sto.entities.setLocation(e, EntityLocation{Archetype: target.id, Row: row})
}

// Insert adds components to e. Components e already owns are overwritten and
// marked changed; new ones are marked added.
func (sto *Storage) Insert(e Entity, components ...any) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	b, err := bundleOf(components)
	if err != nil {
		return err
	}
	sto.flushReserved()
	loc, ok := sto.entities.location(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	tick := sto.writeTick()
	src := sto.archetypes.get(loc.Archetype)
	target := sto.archetypes.insertTarget(src, b.mask, b.ids)

	for i, info := range b.infos {
		if info.kind != SparseStorage {
			continue
		}
		set := sto.sparse.getOrCreate(info)
		if src.Has(info.id) {
			set.replace(e.Index, b.values[i], tick)
			continue
		}
		set.insert(e.Index, b.values[i], newComponentTicks(tick))
	}

	if target == src {
		for i, info := range b.infos {
			if info.kind == TableStorage {
				src.table.column(info.id).replace(int(loc.Row), b.values[i], tick)
			}
		}
		return nil
	}

	newRow := len(target.table.entities)
	for i, id := range target.table.ids {
		col := target.table.columns[i]
		if srcCol := src.table.column(id); srcCol != nil {
			col.moveFrom(srcCol, int(loc.Row))
			if v, ok := b.valueFor(id); ok {
				col.replace(newRow, v, tick)
			}
			continue
		}
		v, _ := b.valueFor(id)
		col.push(v, newComponentTicks(tick))
	}
	target.table.entities = append(target.table.entities, e)
	sto.detach(src, loc.Row, nil)
	sto.entities.setLocation(e, EntityLocation{Archetype: target.id, Row: TableRow(newRow)})
	return nil
}

// Remove drops the given components from e. Components e does not own are
// ignored.
func (sto *Storage) Remove(e Entity, components ...Component) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	sto.flushReserved()
	loc, ok := sto.entities.location(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	src := sto.archetypes.get(loc.Archetype)
	ids := make([]ComponentID, 0, len(components))
	for _, c := range components {
		if src.Has(c.ID()) && !slices.Contains(ids, c.ID()) {
			ids = append(ids, c.ID())
		}
	}
	if len(ids) == 0 {
		return nil
	}
	removed := maskOf(ids)
	target := sto.archetypes.removeTarget(src, removed)

	newRow := len(target.table.entities)
	for i, id := range target.table.ids {
		target.table.columns[i].moveFrom(src.table.column(id), int(loc.Row))
	}
	target.table.entities = append(target.table.entities, e)

	var drop []bool
	if src.dropsAny {
		drop = make([]bool, len(src.table.ids))
		for i, id := range src.table.ids {
			drop[i] = src.drops[i] && slices.Contains(ids, id)
		}
	}
	for _, id := range ids {
		if info := componentInfoOf(id); info.kind == SparseStorage {
			sto.sparse.get(id).remove(e.Index, info.drops)
		}
		sto.removed.record(id, e)
	}
	sto.detach(src, loc.Row, drop)
	sto.entities.setLocation(e, EntityLocation{Archetype: target.id, Row: TableRow(newRow)})
	return nil
}

// Despawn removes e and all of its components. It returns false when e is
// not live, and also when the storage is locked: a running schedule must
// despawn through Commands.
func (sto *Storage) Despawn(e Entity) bool {
	if sto.Locked() {
		Config.debug("despawn refused while storage is locked", "entity", e)
		return false
	}
	sto.flushReserved()
	loc, ok := sto.entities.location(e)
	if !ok {
		return false
	}
	src := sto.archetypes.get(loc.Archetype)
	for _, id := range src.sparse {
		sto.sparse.get(id).remove(e.Index, componentInfoOf(id).drops)
	}
	for _, id := range src.components {
		sto.removed.record(id, e)
	}
	sto.detach(src, loc.Row, src.dropFlags())
	sto.entities.release(e)
	return true
}

// detach swap-removes row from a and repairs the location of the entity that
// moved into it.
func (sto *Storage) detach(a *archetype, row TableRow, drop []bool) {
	if moved, ok := a.table.swapRemove(row, drop); ok {
		sto.entities.setLocation(moved, EntityLocation{Archetype: a.id, Row: row})
	}
}

// flushReserved gives every entity reserved through Commands a place in the
// empty archetype.
func (sto *Storage) flushReserved() {
	empty := sto.archetypes.get(emptyArchetype)
	sto.entities.flushReserved(func(e Entity) {
		row := TableRow(len(empty.table.entities))
		empty.table.entities = append(empty.table.entities, e)
		sto.entities.setLocation(e, EntityLocation{Archetype: emptyArchetype, Row: row})
	})
}

// CheckChangeTicks rebiases every stored tick once the clock has advanced at
// least CheckTickThreshold since the previous scan. It returns true when a
// scan ran.
func (sto *Storage) CheckChangeTicks() bool {
	now := sto.ChangeTick()
	if uint32(now.RelativeTo(sto.lastCheckTick)) < CheckTickThreshold {
		return false
	}
	for _, a := range sto.archetypes.asSlice {
		a.table.checkTicks(now)
	}
	sto.sparse.checkTicks(now)
	sto.resources.checkTicks(now)
	sto.lastChangeTick.checkTick(now)
	sto.lastCheckTick = now
	return true
}

// ticksAt returns the ticks of component id on row of a, or nil when a does
// not hold it.
func (sto *Storage) ticksAt(a *archetype, row int, id ComponentID) *ComponentTicks {
	if col := a.table.column(id); col != nil {
		return col.ticksAt(row)
	}
	if !a.Has(id) {
		return nil
	}
	return sto.sparse.get(id).ticksAt(a.table.entities[row].Index)
}

// componentPtr finds e's value of the component described by info.
func componentPtr[T any](sto *Storage, e Entity, info *componentInfo) (*T, *ComponentTicks, bool) {
	loc, ok := sto.entities.location(e)
	if !ok {
		return nil, nil, false
	}
	a := sto.archetypes.get(loc.Archetype)
	if !a.Has(info.id) {
		return nil, nil, false
	}
	if info.kind == SparseStorage {
		set := sto.sparse.get(info.id).(*typedSparseSet[T])
		return set.get(e.Index), set.ticksAt(e.Index), true
	}
	col := a.table.column(info.id)
	return col.(*typedColumn[T]).get(int(loc.Row)), col.ticksAt(int(loc.Row)), true
}

// GetComponent returns a copy of e's T component.
func GetComponent[T any](sto *Storage, e Entity) (T, bool) {
	var zero T
	info, ok := componentInfoFor(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	v, _, ok := componentPtr[T](sto, e, info)
	if !ok {
		return zero, false
	}
	return *v, true
}

// GetComponentMut returns a pointer to e's T component and marks it changed.
// The pointer is valid until the next structural change.
func GetComponentMut[T any](sto *Storage, e Entity) (*T, bool) {
	info, ok := componentInfoFor(reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}
	v, ticks, ok := componentPtr[T](sto, e, info)
	if !ok {
		return nil, false
	}
	ticks.Changed = sto.writeTick()
	return v, true
}

// HasComponent reports whether e owns a T.
func HasComponent[T any](sto *Storage, e Entity) bool {
	info, ok := componentInfoFor(reflect.TypeFor[T]())
	if !ok {
		return false
	}
	loc, ok := sto.entities.location(e)
	return ok && sto.archetypes.get(loc.Archetype).Has(info.id)
}

// TicksOf returns the change ticks of e's T component.
func TicksOf[T any](sto *Storage, e Entity) (ComponentTicks, bool) {
	info, ok := componentInfoFor(reflect.TypeFor[T]())
	if !ok {
		return ComponentTicks{}, false
	}
	_, ticks, ok := componentPtr[T](sto, e, info)
	if !ok {
		return ComponentTicks{}, false
	}
	return *ticks, true
}

// RemoveComponent removes e's T component.
func RemoveComponent[T any](sto *Storage, e Entity) error {
	return sto.Remove(e, ComponentOf[T]())
}
