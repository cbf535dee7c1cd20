package depot

// archetypeTable is the columnar store behind one archetype: one column per
// table-stored component id plus the row -> entity map.
type archetypeTable struct {
	entities []Entity
	ids      []ComponentID
	columns  []column
	// slots maps a ComponentID to its index in columns, -1 when absent.
	slots []int16
}

func newArchetypeTable(ids []ComponentID) *archetypeTable {
	t := &archetypeTable{
		ids:     ids,
		columns: make([]column, len(ids)),
	}
	maxID := -1
	for _, id := range ids {
		maxID = max(maxID, int(id))
	}
	t.slots = make([]int16, maxID+1)
	for i := range t.slots {
		t.slots[i] = -1
	}
	for i, id := range ids {
		t.columns[i] = componentInfoOf(id).newColumn()
		t.slots[id] = int16(i)
	}
	return t
}

// Length returns the number of rows.
func (t *archetypeTable) Length() int {
	return len(t.entities)
}

func (t *archetypeTable) column(id ComponentID) column {
	if int(id) >= len(t.slots) {
		return nil
	}
	slot := t.slots[id]
	if slot < 0 {
		return nil
	}
	return t.columns[slot]
}

func (t *archetypeTable) reserve(n int) {
	for _, col := range t.columns {
		col.reserve(n)
	}
}

// swapRemove deletes row from every column and from the entity map. It returns
// the entity that was moved into row, if any, so its location can be fixed.
func (t *archetypeTable) swapRemove(row TableRow, drop []bool) (Entity, bool) {
	for i, col := range t.columns {
		col.swapRemove(int(row), drop != nil && drop[i])
	}
	last := len(t.entities) - 1
	var moved Entity
	movedOK := false
	if int(row) != last {
		moved = t.entities[last]
		t.entities[row] = moved
		movedOK = true
	}
	t.entities[last] = Entity{}
	t.entities = t.entities[:last]
	return moved, movedOK
}

func (t *archetypeTable) checkTicks(now Tick) {
	for _, col := range t.columns {
		col.checkTicks(now)
	}
}
