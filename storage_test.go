package depot

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

type dropCounter struct {
	drops *int
}

func (d dropCounter) Drop() {
	*d.drops++
}

var dropComp = FactoryNewComponent[dropCounter]()

type Stunned struct {
	Turns int
}

type sparseDropCounter struct {
	drops *int
}

func (d sparseDropCounter) Drop() {
	*d.drops++
}

var (
	stunnedComp    = FactoryNewSparseComponent[Stunned]()
	sparseDropComp = FactoryNewSparseComponent[sparseDropCounter]()
)

// fakeElement stands in for table element types so a private registry can be
// filled without touching the process-wide one.
type fakeElement struct {
	id  table.ElementTypeID
	typ reflect.Type
}

func (f fakeElement) ID() table.ElementTypeID { return f.id }
func (f fakeElement) Type() reflect.Type      { return f.typ }
func (f fakeElement) Size() uint32            { return uint32(f.typ.Size()) }

// nthType returns a distinct type per n.
func nthType(n int) reflect.Type {
	return reflect.ArrayOf(n, reflect.TypeFor[byte]())
}

// TestArchetypeCreation tests that archetypes are keyed by component set
func TestArchetypeCreation(t *testing.T) {
	tests := []struct {
		name                string
		first               []any
		second              []any
		expectSameArchetype bool
	}{
		{"Identical components", []any{Position{}, Velocity{}}, []any{Position{}, Velocity{}}, true},
		{"Different order", []any{Position{}, Velocity{}}, []any{Velocity{}, Position{}}, true},
		{"Different components", []any{Position{}}, []any{Velocity{}}, false},
		{"Subset components", []any{Position{}, Velocity{}}, []any{Position{}}, false},
		{"Superset components", []any{Position{}}, []any{Position{}, Velocity{}, Health{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := Factory.NewStorage()

			e1, err := storage.Spawn(tt.first...)
			if err != nil {
				t.Fatalf("Failed to spawn first entity: %v", err)
			}
			e2, err := storage.Spawn(tt.second...)
			if err != nil {
				t.Fatalf("Failed to spawn second entity: %v", err)
			}

			loc1, _ := storage.Location(e1)
			loc2, _ := storage.Location(e2)
			sameArchetype := loc1.Archetype == loc2.Archetype
			if sameArchetype != tt.expectSameArchetype {
				t.Errorf("Archetypes same: %v, expected: %v", sameArchetype, tt.expectSameArchetype)
			}
		})
	}
}

// checkLocations verifies every live entity sits in a row of an archetype
// whose component set equals want[e].
func checkLocations(t *testing.T, sto *Storage, want map[Entity][]ComponentID) {
	t.Helper()
	for e, ids := range want {
		loc, ok := sto.Location(e)
		if !ok {
			t.Fatalf("Entity %v has no location", e)
		}
		arch, _ := sto.Archetype(loc.Archetype)
		got := arch.Components()
		sorted := slices.Clone(ids)
		slices.Sort(sorted)
		if !slices.Equal(got, sorted) {
			t.Fatalf("Entity %v is in archetype %v, want components %v", e, got, sorted)
		}
		if int(loc.Row) >= arch.Length() {
			t.Fatalf("Entity %v row %d out of range %d", e, loc.Row, arch.Length())
		}
		table := sto.archetypes.get(loc.Archetype).table
		if table.entities[loc.Row] != e {
			t.Fatalf("Row %d of archetype %d holds %v, want %v", loc.Row, loc.Archetype, table.entities[loc.Row], e)
		}
	}
}

func TestLocationInvariant(t *testing.T) {
	sto := Factory.NewStorage()
	want := make(map[Entity][]ComponentID)
	var live []Entity

	values := []any{Position{}, Velocity{}, Health{}}
	comps := []Component{posComp, velComp, healthComp}

	// A fixed linear congruential sequence keeps the walk reproducible
	seed := uint32(7)
	next := func(n int) int {
		seed = seed*1664525 + 1013904223
		return int(seed>>8) % n
	}

	for step := 0; step < 2000; step++ {
		switch op := next(4); {
		case op == 0 || len(live) == 0:
			e, err := sto.Spawn(values[next(3)])
			if err != nil {
				t.Fatalf("Spawn() error = %v", err)
			}
			loc, _ := sto.Location(e)
			arch, _ := sto.Archetype(loc.Archetype)
			want[e] = arch.Components()
			live = append(live, e)

		case op == 1:
			e := live[next(len(live))]
			c := next(3)
			if err := sto.Insert(e, values[c]); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if !slices.Contains(want[e], comps[c].ID()) {
				want[e] = append(want[e], comps[c].ID())
			}

		case op == 2:
			e := live[next(len(live))]
			c := next(3)
			if err := sto.Remove(e, comps[c]); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			want[e] = slices.DeleteFunc(want[e], func(id ComponentID) bool { return id == comps[c].ID() })

		default:
			i := next(len(live))
			e := live[i]
			if !sto.Despawn(e) {
				t.Fatalf("Despawn(%v) = false", e)
			}
			delete(want, e)
			live = slices.Delete(live, i, i+1)
		}
		checkLocations(t, sto, want)
	}

	if sto.Len() != len(live) {
		t.Errorf("Len() = %d, want %d", sto.Len(), len(live))
	}
}

func TestSwapRemovePreservesNeighbours(t *testing.T) {
	sto := Factory.NewStorage()

	var entities []Entity
	for i := range 5 {
		e, err := sto.Spawn(Position{X: float64(i)}, Health{Current: i})
		if err != nil {
			t.Fatalf("Spawn() error = %v", err)
		}
		entities = append(entities, e)
	}

	// Despawning a middle row moves the last row into it
	sto.Despawn(entities[1])
	// Removing a component moves entities[0] out of the shared table
	if err := sto.Remove(entities[0], healthComp); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	for i, e := range entities[2:] {
		want := i + 2
		pos, ok := GetComponent[Position](sto, e)
		if !ok || pos.X != float64(want) {
			t.Errorf("Entity %v Position = %v, want X=%d", e, pos, want)
		}
		health, ok := GetComponent[Health](sto, e)
		if !ok || health.Current != want {
			t.Errorf("Entity %v Health = %v, want Current=%d", e, health, want)
		}
	}

	pos, ok := GetComponent[Position](sto, entities[0])
	if !ok || pos.X != 0 {
		t.Errorf("Moved entity Position = %v, want X=0", pos)
	}
	if HasComponent[Health](sto, entities[0]) {
		t.Errorf("Moved entity still has Health")
	}
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		start  []any
		bundle []any
		remove []Component
	}{
		{"From empty", nil, []any{Position{}, Velocity{}}, []Component{posComp, velComp}},
		{"Onto existing", []any{Health{}}, []any{Position{}}, []Component{posComp}},
		{"Three components", []any{Marker{}}, []any{Position{}, Velocity{}, Health{}}, []Component{posComp, velComp, healthComp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sto := Factory.NewStorage()
			e, err := sto.Spawn(tt.start...)
			if err != nil {
				t.Fatalf("Spawn() error = %v", err)
			}
			before, _ := sto.ComponentsOf(e)

			if err := sto.Insert(e, tt.bundle...); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if err := sto.Remove(e, tt.remove...); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			after, _ := sto.ComponentsOf(e)
			if !slices.Equal(before, after) {
				t.Errorf("Components after round trip = %v, want %v", after, before)
			}
		})
	}
}

func TestInsertExistingMarksChanged(t *testing.T) {
	sto := Factory.NewStorage()
	e, _ := sto.Spawn(Position{X: 1})
	added, _ := TicksOf[Position](sto, e)

	sto.changeTick.Add(10)
	if err := sto.Insert(e, Position{X: 2}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	ticks, _ := TicksOf[Position](sto, e)
	if ticks.Added != added.Added {
		t.Errorf("Added tick moved from %d to %d", added.Added, ticks.Added)
	}
	if ticks.Changed != sto.ChangeTick() {
		t.Errorf("Changed tick = %d, want %d", ticks.Changed, sto.ChangeTick())
	}
	if pos, _ := GetComponent[Position](sto, e); pos.X != 2 {
		t.Errorf("Position = %v, want X=2", pos)
	}
}

func TestStorageErrors(t *testing.T) {
	type unregistered struct{}

	sto := Factory.NewStorage()
	e, _ := sto.Spawn(Position{})
	stale, _ := sto.Spawn()
	sto.Despawn(stale)

	tests := []struct {
		name  string
		fn    func() error
		check func(error) bool
	}{
		{
			name:  "Duplicate component",
			fn:    func() error { _, err := sto.Spawn(Position{}, Position{}); return err },
			check: func(err error) bool { var d DuplicateComponentError; return errors.As(err, &d) },
		},
		{
			name:  "Unregistered component",
			fn:    func() error { return sto.Insert(e, unregistered{}) },
			check: func(err error) bool { var u UnregisteredComponentError; return errors.As(err, &u) },
		},
		{
			name:  "Insert on stale entity",
			fn:    func() error { return sto.Insert(stale, Velocity{}) },
			check: IsNotFound,
		},
		{
			name:  "Remove on stale entity",
			fn:    func() error { return sto.Remove(stale, posComp) },
			check: IsNotFound,
		},
		{
			name:  "Missing resource",
			fn:    func() error { return RemoveResource[Health](sto) },
			check: func(err error) bool { var r ResourceNotFoundError; return errors.As(err, &r) },
		},
		{
			name: "Locked storage",
			fn: func() error {
				sto.Lock()
				defer sto.Unlock()
				_, err := sto.Spawn(Velocity{})
				return err
			},
			check: func(err error) bool { var l LockedStorageError; return errors.As(err, &l) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if err == nil || !tt.check(err) {
				t.Errorf("Got error %v", err)
			}
		})
	}

	// Stale references are soft misses
	if sto.Despawn(stale) {
		t.Errorf("Despawn of stale entity succeeded")
	}

	// So is a despawn while locked; the entity stays
	sto.Lock()
	refused := sto.Despawn(e)
	sto.Unlock()
	if refused || !sto.Contains(e) {
		t.Errorf("Despawn on locked storage = %v, entity live = %v", refused, sto.Contains(e))
	}
	if _, ok := GetComponent[Position](sto, stale); ok {
		t.Errorf("GetComponent on stale entity succeeded")
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	sto := Factory.NewStorage()
	e, _ := sto.Spawn(Position{})
	before, _ := sto.Location(e)
	count := sto.ArchetypeCount()

	if err := sto.Remove(e, velComp, healthComp); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	after, _ := sto.Location(e)
	if before != after {
		t.Errorf("Location changed from %v to %v", before, after)
	}
	if sto.ArchetypeCount() != count {
		t.Errorf("Remove of absent components created an archetype")
	}
}

func TestDropBehaviour(t *testing.T) {
	drops := 0
	sto := Factory.NewStorage()
	a, _ := sto.Spawn(dropCounter{drops: &drops}, Position{})
	b, _ := sto.Spawn(dropCounter{drops: &drops}, Position{})

	// Moving between archetypes does not drop
	if err := sto.Insert(a, Velocity{}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := sto.Remove(a, posComp); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if drops != 0 {
		t.Fatalf("Drops after moves = %d, want 0", drops)
	}

	if err := sto.Remove(a, dropComp); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if drops != 1 {
		t.Errorf("Drops after remove = %d, want 1", drops)
	}

	sto.Despawn(b)
	if drops != 2 {
		t.Errorf("Drops after despawn = %d, want 2", drops)
	}
}

func TestResources(t *testing.T) {
	type Gravity struct{ Y float64 }

	sto := Factory.NewStorage()
	if HasResource[Gravity](sto) {
		t.Fatalf("Resource present before insert")
	}
	if err := sto.InsertResource(Gravity{Y: -9.8}); err != nil {
		t.Fatalf("InsertResource() error = %v", err)
	}

	g, ok := GetResourceMut[Gravity](sto)
	if !ok {
		t.Fatalf("GetResourceMut() found nothing")
	}
	g.Y = -1

	got, _ := GetResource[Gravity](sto)
	if got.Y != -1 {
		t.Errorf("Resource Y = %v, want -1", got.Y)
	}

	if err := RemoveResource[Gravity](sto); err != nil {
		t.Fatalf("RemoveResource() error = %v", err)
	}
	if HasResource[Gravity](sto) {
		t.Errorf("Resource present after remove")
	}
}

func TestSpawnBatch(t *testing.T) {
	sto := Factory.NewStorage()
	entities, err := sto.SpawnBatch(100, Position{X: 3}, Velocity{Y: 1})
	if err != nil {
		t.Fatalf("SpawnBatch() error = %v", err)
	}
	if len(entities) != 100 || sto.Len() != 100 {
		t.Fatalf("Spawned %d entities, storage has %d", len(entities), sto.Len())
	}

	// All entities share one archetype besides the empty one
	if sto.ArchetypeCount() != 2 {
		t.Errorf("ArchetypeCount() = %d, want 2", sto.ArchetypeCount())
	}
	for _, e := range entities {
		if pos, _ := GetComponent[Position](sto, e); pos.X != 3 {
			t.Fatalf("Entity %v Position = %v", e, pos)
		}
	}
}

func TestTypeLimits(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		register func() func(n int) error
		check    func(error) bool
	}{
		{
			name:  "Components",
			limit: MaxComponentTypes,
			register: func() func(int) error {
				r := newComponentRegistry()
				return func(n int) error {
					elem := fakeElement{id: table.ElementTypeID(n + 1), typ: nthType(n)}
					_, err := r.register(elem, TableStorage, nil, nil)
					return err
				}
			},
			check: func(err error) bool { var tm TooManyComponentsError; return errors.As(err, &tm) },
		},
		{
			name:  "Resources",
			limit: MaxResourceTypes,
			register: func() func(int) error {
				r := newResourceRegistry()
				return func(n int) error {
					_, err := r.idFor(nthType(n))
					return err
				}
			},
			check: func(err error) bool { var tm TooManyResourcesError; return errors.As(err, &tm) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.limit != mask.MaxBits {
				t.Fatalf("Limit = %d, want mask width %d", tt.limit, mask.MaxBits)
			}
			register := tt.register()
			for n := range tt.limit {
				if err := register(n); err != nil {
					t.Fatalf("Registering type %d: %v", n, err)
				}
			}
			if err := register(tt.limit); err == nil || !tt.check(err) {
				t.Errorf("Registering past the limit: error = %v", err)
			}

			// Known types still resolve once the registry is full
			if err := register(0); err != nil {
				t.Errorf("Re-registering type 0: %v", err)
			}

			// Every id handed out fits a mask
			var m mask.Mask
			m.Mark(uint32(tt.limit - 1))
			if !m.Contains(uint32(tt.limit - 1)) {
				t.Errorf("Highest id does not fit a mask")
			}
		})
	}
}

func TestSparseStorage(t *testing.T) {
	sto := Factory.NewStorage()
	a, _ := sto.Spawn(Position{X: 1}, Stunned{Turns: 1})
	b, _ := sto.Spawn(Position{X: 2})
	c, _ := sto.Spawn(Position{X: 3}, Stunned{Turns: 3})

	if info, _ := DescribeComponent(stunnedComp.ID()); info.Storage != SparseStorage {
		t.Fatalf("Stunned storage = %v, want sparse", info.Storage)
	}
	loc, _ := sto.Location(a)
	arch := sto.archetypes.get(loc.Archetype)
	if !arch.Has(stunnedComp.ID()) || arch.table.column(stunnedComp.ID()) != nil {
		t.Fatalf("Stunned should be an archetype member without a table column")
	}

	tests := []struct {
		name string
		fn   func() error
		want map[Entity]int
	}{
		{
			name: "Spawned values",
			fn:   func() error { return nil },
			want: map[Entity]int{a: 1, c: 3},
		},
		{
			name: "Insert adds to the set",
			fn:   func() error { return sto.Insert(b, Stunned{Turns: 2}) },
			want: map[Entity]int{a: 1, b: 2, c: 3},
		},
		{
			name: "Insert over an existing value replaces it",
			fn:   func() error { return sto.Insert(c, Stunned{Turns: 30}) },
			want: map[Entity]int{a: 1, b: 2, c: 30},
		},
		{
			name: "Table move keeps the sparse value",
			fn:   func() error { return sto.Insert(a, Velocity{X: 1}) },
			want: map[Entity]int{a: 1, b: 2, c: 30},
		},
		{
			name: "Remove swaps the last value in",
			fn:   func() error { return sto.Remove(a, stunnedComp) },
			want: map[Entity]int{b: 2, c: 30},
		},
		{
			name: "Despawn clears the value",
			fn: func() error {
				sto.Despawn(c)
				return nil
			},
			want: map[Entity]int{b: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("Operation failed: %v", err)
			}
			for _, e := range []Entity{a, b, c} {
				got, ok := GetComponent[Stunned](sto, e)
				want, wantOK := tt.want[e]
				if ok != wantOK || got.Turns != want {
					t.Errorf("Entity %v Stunned = %v, %v; want %v, %v", e, got.Turns, ok, want, wantOK)
				}
			}
			if n := sto.sparse.get(stunnedComp.ID()).len(); n != len(tt.want) {
				t.Errorf("Sparse set holds %d values, want %d", n, len(tt.want))
			}
		})
	}

	// A reused index does not inherit the old value
	d, _ := sto.Spawn(Position{})
	if HasComponent[Stunned](sto, d) {
		t.Errorf("Entity %v reusing index %d has a Stunned", d, d.Index)
	}

	removed := Removed[Stunned](sto)
	if !slices.Contains(removed, a) || !slices.Contains(removed, c) {
		t.Errorf("Removed[Stunned] = %v, want %v and %v", removed, a, c)
	}
}

func TestSparseQueries(t *testing.T) {
	sto := Factory.NewStorage()
	sto.Spawn(Position{X: 1})
	stunned, _ := sto.Spawn(Position{X: 2}, Stunned{Turns: 2})
	sto.Spawn(Stunned{Turns: 5})

	query := Factory.NewQuery().Read(posComp).Write(stunnedComp)
	state, err := Factory.NewQueryState(sto, query)
	if err != nil {
		t.Fatalf("NewQueryState() error = %v", err)
	}
	if n := state.Count(); n != 1 {
		t.Fatalf("Count() = %d, want 1", n)
	}

	sto.lastChangeTick = sto.incrementChangeTick()
	for cur := state.Cursor(); cur.Next(); {
		GetMut[Stunned](cur).Turns--
	}
	if got, _ := GetComponent[Stunned](sto, stunned); got.Turns != 1 {
		t.Errorf("Turns = %d, want 1", got.Turns)
	}

	changed, _ := Factory.NewQueryState(sto, Factory.NewQuery().Read(stunnedComp).Where(Factory.NewQuery().Changed(stunnedComp)))
	if n := changed.Count(); n != 1 {
		t.Errorf("Changed(Stunned) matched %d, want 1", n)
	}

	optional, _ := Factory.NewQueryState(sto, Factory.NewQuery().Read(posComp).Optional(stunnedComp))
	with := 0
	for cur := optional.Cursor(); cur.Next(); {
		if _, ok := TryGet[Stunned](cur); ok {
			with++
		}
	}
	if with != 1 {
		t.Errorf("Optional Stunned present on %d rows, want 1", with)
	}
}

func TestSparseDrop(t *testing.T) {
	drops := 0
	sto := Factory.NewStorage()
	a, _ := sto.Spawn(Position{}, sparseDropCounter{drops: &drops})
	b, _ := sto.Spawn(sparseDropCounter{drops: &drops})

	if err := sto.Insert(a, Velocity{}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if drops != 0 {
		t.Fatalf("Drops after move = %d, want 0", drops)
	}
	if err := sto.Remove(a, sparseDropComp); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	sto.Despawn(b)
	if drops != 2 {
		t.Errorf("Drops = %d, want 2", drops)
	}
}
