package depot

type factory struct{}

// Factory is the entry point for creating storages, queries and schedules.
var Factory factory

func (f factory) NewStorage() *Storage {
	return newStorage()
}

func (f factory) NewQuery() *Query {
	return newQuery()
}

// NewQueryState matches query against sto. It fails when the query fetches
// the same component twice.
func (f factory) NewQueryState(sto *Storage, query *Query) (*QueryState, error) {
	return newQueryState(sto, query)
}

// NewCursor is shorthand for building a QueryState and taking its cursor.
func (f factory) NewCursor(sto *Storage, query *Query) (*Cursor, error) {
	state, err := newQueryState(sto, query)
	if err != nil {
		return nil, err
	}
	return state.Cursor(), nil
}

func (f factory) NewSchedule() *Schedule {
	return newSchedule()
}

// NewCommands returns a command buffer for use outside of systems.
func (f factory) NewCommands(sto *Storage) *Commands {
	return newCommands(sto)
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
