package depot

import (
	"iter"
	"reflect"
)

// Cursor walks the rows matched by a QueryState.
//
//	cursor := state.Cursor()
//	for cursor.Next() {
//		pos := depot.GetMut[Position](cursor)
//		vel := depot.Get[Velocity](cursor)
//		pos.X += vel.X
//	}
type Cursor struct {
	state   *QueryState
	lastRun Tick
	thisRun Tick

	currentArchetype *archetype
	storageIndex     int
	row              int
	remaining        int
	columns          []column
	// sparse holds the set of every fetched sparse component the current
	// archetype owns.
	sparse []sparseSet

	initialized bool
}

func newCursor(state *QueryState, lastRun, thisRun Tick) *Cursor {
	return &Cursor{
		state:   state,
		lastRun: lastRun,
		thisRun: thisRun,
		columns: make([]column, len(state.fetch)),
		sparse:  make([]sparseSet, len(state.fetch)),
	}
}

func (c *Cursor) Next() bool {
	if !c.initialized {
		c.initialize()
	}
	for {
		c.row++
		if c.row < c.remaining {
			if !c.state.rowFilter || c.state.filter.matchesRow(c.state.storage, c.currentArchetype, c.row, c.lastRun, c.thisRun) {
				return true
			}
			continue
		}
		if !c.advance() {
			c.Reset()
			return false
		}
	}
}

func (c *Cursor) advance() bool {
	for c.storageIndex+1 < len(c.state.matched) {
		c.storageIndex++
		a := c.state.matched[c.storageIndex]
		if a.table.Length() == 0 {
			continue
		}
		c.bind(a)
		c.row = -1
		c.remaining = a.table.Length()
		return true
	}
	return false
}

func (c *Cursor) initialize() {
	c.storageIndex = -1
	c.row = -1
	c.remaining = 0
	c.currentArchetype = nil
	c.initialized = true
}

func (c *Cursor) bind(a *archetype) {
	c.currentArchetype = a
	for i, term := range c.state.fetch {
		c.columns[i] = a.table.column(term.info.id)
		c.sparse[i] = nil
		if term.info.kind == SparseStorage && a.Has(term.info.id) {
			c.sparse[i] = c.state.storage.sparse.get(term.info.id)
		}
	}
}

// pin positions the cursor on a single row so that Next reports no more rows.
func (c *Cursor) pin(a *archetype, row int) {
	c.bind(a)
	c.row = row
	c.remaining = row + 1
	c.storageIndex = len(c.state.matched)
	c.initialized = true
}

// Entities yields the row and entity of every match.
func (c *Cursor) Entities() iter.Seq2[int, Entity] {
	return func(yield func(int, Entity) bool) {
		for c.Next() {
			if !yield(c.row, c.Entity()) {
				c.Reset()
				return
			}
		}
	}
}

func (c *Cursor) Reset() {
	c.storageIndex = -1
	c.row = -1
	c.remaining = 0
	c.currentArchetype = nil
	c.initialized = false
}

// Entity returns the entity at the cursor.
func (c *Cursor) Entity() Entity {
	return c.currentArchetype.table.entities[c.row]
}

// Row returns the table row at the cursor.
func (c *Cursor) Row() TableRow {
	return TableRow(c.row)
}

// Archetype returns the archetype at the cursor.
func (c *Cursor) Archetype() Archetype {
	return c.currentArchetype
}

func (c *Cursor) RemainingInArchetype() int {
	return c.remaining - c.row - 1
}

// TotalMatched counts the rows the cursor would yield from the start.
func (c *Cursor) TotalMatched() int {
	if !c.state.rowFilter {
		total := 0
		for _, a := range c.state.matched {
			total += a.table.Length()
		}
		return total
	}
	scan := newCursor(c.state, c.lastRun, c.thisRun)
	total := 0
	for scan.Next() {
		total++
	}
	return total
}

func (c *Cursor) slotByType(typ reflect.Type) int {
	for i, term := range c.state.fetch {
		if term.info.typ == typ {
			return i
		}
	}
	return -1
}

func (c *Cursor) slotByID(id ComponentID) int {
	for i, term := range c.state.fetch {
		if term.info.id == id {
			return i
		}
	}
	return -1
}

// present reports whether the current row holds the component fetched in slot.
func (c *Cursor) present(slot int) bool {
	return slot >= 0 && (c.columns[slot] != nil || c.sparse[slot] != nil)
}

func (c *Cursor) ticksAt(slot int) *ComponentTicks {
	if col := c.columns[slot]; col != nil {
		return col.ticksAt(c.row)
	}
	return c.sparse[slot].ticksAt(c.Entity().Index)
}

func (c *Cursor) checkRead(slot int, typ reflect.Type) {
	if !c.present(slot) {
		panic(AccessViolationError{Type: typ, Access: accessRead.String()})
	}
}

// markWritten checks write access to slot and stamps the value changed.
func (c *Cursor) markWritten(slot int, typ reflect.Type) {
	if slot < 0 || c.state.fetch[slot].access != accessWrite {
		panic(AccessViolationError{Type: typ, Access: accessWrite.String()})
	}
	c.ticksAt(slot).Changed = c.thisRun
}

func cursorValue[T any](c *Cursor, slot int) *T {
	if col := c.columns[slot]; col != nil {
		return col.(*typedColumn[T]).get(c.row)
	}
	return c.sparse[slot].(*typedSparseSet[T]).get(c.Entity().Index)
}

// Get returns a copy of the T value at the cursor. T must be fetched by the
// query with Read, Write, or a present Optional.
func Get[T any](c *Cursor) T {
	typ := reflect.TypeFor[T]()
	slot := c.slotByType(typ)
	c.checkRead(slot, typ)
	return *cursorValue[T](c, slot)
}

// GetMut returns a pointer to the T value at the cursor and marks it changed.
// T must be fetched with Write.
func GetMut[T any](c *Cursor) *T {
	typ := reflect.TypeFor[T]()
	slot := c.slotByType(typ)
	c.markWritten(slot, typ)
	return cursorValue[T](c, slot)
}

// TryGet returns the T value at the cursor when the row has one.
func TryGet[T any](c *Cursor) (T, bool) {
	var zero T
	slot := c.slotByType(reflect.TypeFor[T]())
	if !c.present(slot) {
		return zero, false
	}
	return *cursorValue[T](c, slot), true
}

// TicksAt returns the change ticks of the T value at the cursor.
func TicksAt[T any](c *Cursor) (ComponentTicks, bool) {
	slot := c.slotByType(reflect.TypeFor[T]())
	if !c.present(slot) {
		return ComponentTicks{}, false
	}
	return *c.ticksAt(slot), true
}
