package depot

import (
	"errors"
	"testing"
)

// TestQueryFiltering tests the structural query operations
func TestQueryFiltering(t *testing.T) {
	storage := Factory.NewStorage()

	// Create entities with different component combinations
	storage.SpawnBatch(5, Position{})
	storage.SpawnBatch(3, Position{}, Velocity{})
	storage.SpawnBatch(2, Position{}, Health{})
	storage.SpawnBatch(4, Velocity{}, Health{})
	storage.SpawnBatch(1, Position{}, Velocity{}, Health{})

	tests := []struct {
		name  string
		build func(q *Query)
		want  int
	}{
		{
			name:  "And position velocity",
			build: func(q *Query) { q.And(posComp, velComp) },
			want:  4,
		},
		{
			name:  "Or velocity health",
			build: func(q *Query) { q.Or(velComp, healthComp) },
			want:  10,
		},
		{
			name:  "Not velocity",
			build: func(q *Query) { q.Not(velComp) },
			want:  7,
		},
		{
			name:  "Position without health",
			build: func(q *Query) { q.Read(posComp).Where(q.Without(healthComp)) },
			want:  8,
		},
		{
			name:  "Nested and or",
			build: func(q *Query) { q.And(healthComp, q.Or(posComp, velComp)) },
			want:  7,
		},
		{
			name:  "Optional does not restrict",
			build: func(q *Query) { q.Read(posComp).Optional(velComp) },
			want:  11,
		},
		{
			name:  "Empty query matches everything",
			build: func(q *Query) {},
			want:  15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := Factory.NewQuery()
			tt.build(query)

			state, err := Factory.NewQueryState(storage, query)
			if err != nil {
				t.Fatalf("NewQueryState() error = %v", err)
			}
			if got := state.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}

			// Count by walking the cursor too
			walked := 0
			for range state.Cursor().Entities() {
				walked++
			}
			if walked != tt.want {
				t.Errorf("Cursor yielded %d rows, want %d", walked, tt.want)
			}
		})
	}
}

// TestQueryComponentAccess tests reading and writing through a cursor
func TestQueryComponentAccess(t *testing.T) {
	storage := Factory.NewStorage()
	for i := range 10 {
		storage.Spawn(Position{X: float64(i)}, Velocity{X: 1, Y: 2})
	}

	query := Factory.NewQuery().Write(posComp).Read(velComp)
	state, err := Factory.NewQueryState(storage, query)
	if err != nil {
		t.Fatalf("NewQueryState() error = %v", err)
	}

	for cursor := state.Cursor(); cursor.Next(); {
		pos := GetMut[Position](cursor)
		vel := Get[Velocity](cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

	// Component handles read the same data
	sum := 0.0
	for cursor := state.Cursor(); cursor.Next(); {
		pos := posComp.ReadFromCursor(cursor)
		if pos.Y != 2 {
			t.Errorf("Position Y = %v, want 2", pos.Y)
		}
		sum += pos.X
	}
	if sum != 55 {
		t.Errorf("Sum of X = %v, want 55", sum)
	}
}

func TestQueryAccessViolation(t *testing.T) {
	storage := Factory.NewStorage()
	storage.Spawn(Position{}, Velocity{})

	state, _ := Factory.NewQueryState(storage, Factory.NewQuery().Read(posComp))
	cursor := state.Cursor()
	if !cursor.Next() {
		t.Fatalf("Cursor yielded nothing")
	}

	defer func() {
		r := recover()
		var violation AccessViolationError
		err, ok := r.(error)
		if !ok || !errors.As(err, &violation) {
			t.Errorf("Recovered %v, want AccessViolationError", r)
		}
	}()
	GetMut[Position](cursor)
}

func TestQueryOptional(t *testing.T) {
	storage := Factory.NewStorage()
	storage.Spawn(Position{X: 1})
	storage.Spawn(Position{X: 2}, Velocity{X: 5})

	state, _ := Factory.NewQueryState(storage, Factory.NewQuery().Read(posComp).Optional(velComp))

	withVelocity := 0
	for cursor := state.Cursor(); cursor.Next(); {
		vel, ok := TryGet[Velocity](cursor)
		if ok {
			withVelocity++
			if vel.X != 5 {
				t.Errorf("Velocity X = %v, want 5", vel.X)
			}
		}
		if ok != velComp.CheckCursor(cursor) {
			t.Errorf("TryGet and CheckCursor disagree")
		}
	}
	if withVelocity != 1 {
		t.Errorf("Rows with velocity = %d, want 1", withVelocity)
	}
}

func TestQueryDuplicateFetch(t *testing.T) {
	storage := Factory.NewStorage()
	query := Factory.NewQuery().Read(posComp).Write(posComp)

	_, err := Factory.NewQueryState(storage, query)
	var dup DuplicateComponentError
	if !errors.As(err, &dup) {
		t.Errorf("NewQueryState() error = %v, want DuplicateComponentError", err)
	}
}

func TestQueryStateExtends(t *testing.T) {
	storage := Factory.NewStorage()
	storage.Spawn(Position{})

	state, _ := Factory.NewQueryState(storage, Factory.NewQuery().Read(posComp))
	if got := len(state.MatchedArchetypes()); got != 1 {
		t.Fatalf("Matched %d archetypes, want 1", got)
	}

	// Archetypes created later are picked up without rebuilding the state
	storage.Spawn(Position{}, Velocity{})
	storage.Spawn(Velocity{})
	if got := len(state.MatchedArchetypes()); got != 2 {
		t.Errorf("Matched %d archetypes, want 2", got)
	}
	if got := state.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestQueryGet(t *testing.T) {
	storage := Factory.NewStorage()
	a, _ := storage.Spawn(Position{X: 4}, Velocity{})
	b, _ := storage.Spawn(Position{X: 5})
	stale, _ := storage.Spawn(Position{})
	storage.Despawn(stale)

	state, _ := Factory.NewQueryState(storage, Factory.NewQuery().Read(posComp, velComp))

	cursor, ok := state.Get(a)
	if !ok {
		t.Fatalf("Get(a) found nothing")
	}
	if cursor.Entity() != a || Get[Position](cursor).X != 4 {
		t.Errorf("Cursor on %v reads %v", cursor.Entity(), Get[Position](cursor))
	}
	if cursor.Next() {
		t.Errorf("Pinned cursor advanced")
	}
	if _, ok := state.Get(b); ok {
		t.Errorf("Get(b) matched an entity without velocity")
	}
	if _, ok := state.Get(stale); ok {
		t.Errorf("Get(stale) matched")
	}
}

func TestQueryChangeFilters(t *testing.T) {
	storage := Factory.NewStorage()
	a, _ := storage.Spawn(Position{}, Health{})
	storage.Spawn(Position{}, Health{})

	// Pretend a schedule pass just finished
	storage.lastChangeTick = storage.incrementChangeTick()

	added := Factory.NewQuery()
	added.Read(posComp).Where(added.Added(healthComp))
	changed := Factory.NewQuery()
	changed.Read(posComp).Where(changed.Changed(healthComp))
	notChanged := Factory.NewQuery()
	notChanged.Read(posComp).Where(notChanged.Not(notChanged.Changed(healthComp)))

	addedState, _ := Factory.NewQueryState(storage, added)
	changedState, _ := Factory.NewQueryState(storage, changed)
	notChangedState, _ := Factory.NewQueryState(storage, notChanged)

	if n := addedState.Count(); n != 0 {
		t.Errorf("Added before any change = %d, want 0", n)
	}

	h, _ := GetComponentMut[Health](storage, a)
	h.Current = 3
	c, _ := storage.Spawn(Position{}, Health{})

	if n := addedState.Count(); n != 1 {
		t.Errorf("Added after spawn = %d, want 1", n)
	}
	if n := changedState.Count(); n != 2 {
		t.Errorf("Changed after write and spawn = %d, want 2", n)
	}
	if n := notChangedState.Count(); n != 1 {
		t.Errorf("Not changed = %d, want 1", n)
	}

	cursor, ok := addedState.Get(c)
	if !ok || cursor.Entity() != c {
		t.Errorf("Added Get(c) = %v, %v", cursor, ok)
	}
}
