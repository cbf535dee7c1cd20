package depot

import (
	"reflect"
	"slices"

	"github.com/TheBitDrifter/mask"
)

// QueryAccess is the component access of one query: what it reads and
// writes, and which components every matched row must have or lack.
type QueryAccess struct {
	Reads    mask.Mask
	Writes   mask.Mask
	Required mask.Mask
	Excluded mask.Mask

	readIDs  []ComponentID
	writeIDs []ComponentID
}

func (qa *QueryAccess) addRead(id ComponentID) {
	if !slices.Contains(qa.readIDs, id) {
		qa.readIDs = append(qa.readIDs, id)
		qa.Reads.Mark(uint32(id))
	}
}

func (qa *QueryAccess) addWrite(id ComponentID) {
	if !slices.Contains(qa.writeIDs, id) {
		qa.writeIDs = append(qa.writeIDs, id)
		qa.Writes.Mark(uint32(id))
	}
}

func (qa *QueryAccess) require(id ComponentID) {
	qa.Required.Mark(uint32(id))
}

func (qa *QueryAccess) exclude(id ComponentID) {
	qa.Excluded.Mark(uint32(id))
}

// disjoint reports whether no row can match both queries.
func (qa *QueryAccess) disjoint(other *QueryAccess) bool {
	return qa.Required.ContainsAny(other.Excluded) || other.Required.ContainsAny(qa.Excluded)
}

// conflicts returns the components both queries touch where at least one
// of them writes.
func (qa *QueryAccess) conflicts(other *QueryAccess) []ComponentID {
	if qa.disjoint(other) {
		return nil
	}
	var ids []ComponentID
	for _, id := range qa.writeIDs {
		if other.Reads.Contains(uint32(id)) || other.Writes.Contains(uint32(id)) {
			ids = append(ids, id)
		}
	}
	for _, id := range other.writeIDs {
		if qa.Reads.Contains(uint32(id)) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Access is everything one system touches.
type Access struct {
	Queries        []QueryAccess
	ResourceReads  mask.Mask
	ResourceWrites mask.Mask

	resReadIDs  []ResourceID
	resWriteIDs []ResourceID
}

func (a *Access) addQuery(qa QueryAccess) {
	a.Queries = append(a.Queries, qa)
}

func (a *Access) addResourceRead(id ResourceID) {
	if !slices.Contains(a.resReadIDs, id) {
		a.resReadIDs = append(a.resReadIDs, id)
		a.ResourceReads.Mark(uint32(id))
	}
}

func (a *Access) addResourceWrite(id ResourceID) {
	if !slices.Contains(a.resWriteIDs, id) {
		a.resWriteIDs = append(a.resWriteIDs, id)
		a.ResourceWrites.Mark(uint32(id))
	}
}

func (a *Access) reset() {
	*a = Access{}
}

// Conflicts returns the component and resource types on which a and other
// cannot safely run at the same time.
func (a *Access) Conflicts(other *Access) (components, resources []reflect.Type) {
	var compIDs []ComponentID
	for i := range a.Queries {
		for j := range other.Queries {
			for _, id := range a.Queries[i].conflicts(&other.Queries[j]) {
				if !slices.Contains(compIDs, id) {
					compIDs = append(compIDs, id)
				}
			}
		}
	}
	for _, id := range compIDs {
		components = append(components, componentInfoOf(id).typ)
	}

	var resIDs []ResourceID
	for _, id := range a.resWriteIDs {
		if other.ResourceReads.Contains(uint32(id)) || other.ResourceWrites.Contains(uint32(id)) {
			resIDs = append(resIDs, id)
		}
	}
	for _, id := range other.resWriteIDs {
		if a.ResourceReads.Contains(uint32(id)) && !slices.Contains(resIDs, id) {
			resIDs = append(resIDs, id)
		}
	}
	for _, id := range resIDs {
		resources = append(resources, resourceType(id))
	}
	return components, resources
}

// IsCompatible reports whether a and other may run concurrently.
func (a *Access) IsCompatible(other *Access) bool {
	c, r := a.Conflicts(other)
	return len(c) == 0 && len(r) == 0
}
