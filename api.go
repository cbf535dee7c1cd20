package depot

import (
	"reflect"

	"github.com/TheBitDrifter/mask"
)

// Component identifies a component type. Handles are obtained from
// FactoryNewComponent or ComponentOf.
type Component interface {
	ID() ComponentID
	Type() reflect.Type
}

// Dropper is implemented by components that need to release something when
// their value leaves storage for good (despawn or remove). Archetype moves
// do not drop.
type Dropper interface {
	Drop()
}

// Archetype is the read-only view of one unique component set.
type Archetype interface {
	ID() ArchetypeID
	Mask() mask.Mask
	Components() []ComponentID
	Length() int
	Has(id ComponentID) bool
}

// QueryNode is one node of a query filter tree.
type QueryNode interface {
	// Evaluate reports whether rows of the archetype may match. It is exact
	// for structural filters and permissive for change filters.
	Evaluate(archetype Archetype) bool

	matchesRow(sto *Storage, a *archetype, row int, lastRun, thisRun Tick) bool
	rowFiltered() bool
	collectAccess(acc *QueryAccess, positive bool)
}

// Param is a system parameter. Parameter types declare their data access when
// the schedule initialises them and receive per-run state before each call.
type Param interface {
	initParam(sto *Storage, meta *SystemMeta) error
	fetchParam(run *systemRun)
}

// Cache is a bounded registry of items keyed by name.
type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	Register(string, T) (int, error)
	Len() int
	Clear()
}
