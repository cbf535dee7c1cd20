package depot

import (
	"slices"

	"github.com/TheBitDrifter/mask"
)

// ArchetypeID indexes Storage archetypes. The empty archetype is always 0.
type ArchetypeID uint32

const emptyArchetype ArchetypeID = 0

type archetype struct {
	id         ArchetypeID
	mask       mask.Mask
	components []ComponentID
	// sparse lists the members whose values live in sparse sets.
	sparse   []ComponentID
	drops    []bool
	dropsAny bool
	table    *archetypeTable

	insertEdges map[mask.Mask]ArchetypeID
	removeEdges map[mask.Mask]ArchetypeID
}

var _ Archetype = &archetype{}

func newArchetype(id ArchetypeID, ids []ComponentID) *archetype {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	var dense, sparse []ComponentID
	for _, cid := range sorted {
		if componentInfoOf(cid).kind == SparseStorage {
			sparse = append(sparse, cid)
			continue
		}
		dense = append(dense, cid)
	}
	a := &archetype{
		id:          id,
		mask:        maskOf(sorted),
		components:  sorted,
		sparse:      sparse,
		drops:       make([]bool, len(dense)),
		table:       newArchetypeTable(dense),
		insertEdges: make(map[mask.Mask]ArchetypeID),
		removeEdges: make(map[mask.Mask]ArchetypeID),
	}
	for i, cid := range dense {
		a.drops[i] = componentInfoOf(cid).drops
		a.dropsAny = a.dropsAny || a.drops[i]
	}
	return a
}

func (a *archetype) ID() ArchetypeID {
	return a.id
}

func (a *archetype) Mask() mask.Mask {
	return a.mask
}

func (a *archetype) Components() []ComponentID {
	return slices.Clone(a.components)
}

func (a *archetype) Length() int {
	return a.table.Length()
}

func (a *archetype) Has(id ComponentID) bool {
	return a.mask.Contains(uint32(id))
}

// dropFlags returns the drop flag of every table column, or nil when no
// column needs dropping.
func (a *archetype) dropFlags() []bool {
	if !a.dropsAny {
		return nil
	}
	return a.drops
}

// archetypes is the append-only set of archetypes owned by a Storage.
type archetypes struct {
	asSlice          []*archetype
	idsGroupedByMask map[mask.Mask]ArchetypeID
}

func newArchetypes() archetypes {
	a := archetypes{
		idsGroupedByMask: make(map[mask.Mask]ArchetypeID),
	}
	a.getOrCreate(nil)
	return a
}

func (as *archetypes) get(id ArchetypeID) *archetype {
	return as.asSlice[id]
}

func (as *archetypes) getOrCreate(ids []ComponentID) *archetype {
	m := maskOf(ids)
	if id, found := as.idsGroupedByMask[m]; found {
		return as.asSlice[id]
	}
	created := newArchetype(ArchetypeID(len(as.asSlice)), ids)
	as.asSlice = append(as.asSlice, created)
	as.idsGroupedByMask[m] = created.id
	return created
}

// insertTarget returns the archetype reached from a by adding bundle.
func (as *archetypes) insertTarget(a *archetype, bundle mask.Mask, ids []ComponentID) *archetype {
	if id, ok := a.insertEdges[bundle]; ok {
		return as.asSlice[id]
	}
	union := slices.Clone(a.components)
	for _, id := range ids {
		if !a.Has(id) {
			union = append(union, id)
		}
	}
	target := as.getOrCreate(union)
	a.insertEdges[bundle] = target.id
	return target
}

// removeTarget returns the archetype reached from a by removing bundle.
func (as *archetypes) removeTarget(a *archetype, bundle mask.Mask) *archetype {
	if id, ok := a.removeEdges[bundle]; ok {
		return as.asSlice[id]
	}
	rest := make([]ComponentID, 0, len(a.components))
	for _, id := range a.components {
		if !bundle.Contains(uint32(id)) {
			rest = append(rest, id)
		}
	}
	target := as.getOrCreate(rest)
	a.removeEdges[bundle] = target.id
	return target
}

func maskOf(ids []ComponentID) mask.Mask {
	var m mask.Mask
	for _, id := range ids {
		m.Mark(uint32(id))
	}
	return m
}
