package depot

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/TheBitDrifter/mask"
)

// ResourceID is the dense, process-stable id of a resource type.
type ResourceID uint32

// MaxResourceTypes bounds the number of distinct resource types. System
// access masks hold one bit per type.
const MaxResourceTypes = mask.MaxBits

type resourceRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]ResourceID
	types  []reflect.Type
}

func newResourceRegistry() *resourceRegistry {
	return &resourceRegistry{byType: make(map[reflect.Type]ResourceID)}
}

var resourceTypes = newResourceRegistry()

func (r *resourceRegistry) idFor(typ reflect.Type) (ResourceID, error) {
	r.mu.RLock()
	id, ok := r.byType[typ]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byType[typ]; ok {
		return id, nil
	}
	if len(r.types) >= MaxResourceTypes {
		return 0, TooManyResourcesError{Type: typ}
	}
	id = ResourceID(len(r.types))
	r.byType[typ] = id
	r.types = append(r.types, typ)
	return id, nil
}

func resourceIDFor(typ reflect.Type) (ResourceID, error) {
	return resourceTypes.idFor(typ)
}

func resourceType(id ResourceID) reflect.Type {
	resourceTypes.mu.RLock()
	defer resourceTypes.mu.RUnlock()
	return resourceTypes.types[id]
}

type resourceCell struct {
	// value holds a *T for resource type T.
	value any
	ticks ComponentTicks
}

// resources holds at most one value per resource type, indexed by ResourceID.
type resources struct {
	cells []*resourceCell
}

func (r *resources) get(id ResourceID) *resourceCell {
	if int(id) >= len(r.cells) {
		return nil
	}
	return r.cells[id]
}

func (r *resources) set(id ResourceID, boxed any, tick Tick) {
	for int(id) >= len(r.cells) {
		r.cells = append(r.cells, nil)
	}
	if cell := r.cells[id]; cell != nil {
		cell.value = boxed
		cell.ticks.Changed = tick
		return
	}
	r.cells[id] = &resourceCell{value: boxed, ticks: newComponentTicks(tick)}
}

func (r *resources) remove(id ResourceID) bool {
	if r.get(id) == nil {
		return false
	}
	r.cells[id] = nil
	return true
}

func (r *resources) checkTicks(now Tick) {
	for _, cell := range r.cells {
		if cell != nil {
			cell.ticks.checkTicks(now)
		}
	}
}

// InsertResource stores v as the resource of its dynamic type, replacing any
// previous value of that type.
func (sto *Storage) InsertResource(v any) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	if v == nil {
		return fmt.Errorf("cannot insert a nil resource")
	}
	typ := reflect.TypeOf(v)
	id, err := resourceIDFor(typ)
	if err != nil {
		return err
	}
	boxed := reflect.New(typ)
	boxed.Elem().Set(reflect.ValueOf(v))
	sto.resources.set(id, boxed.Interface(), sto.writeTick())
	return nil
}

// GetResource returns a pointer to the T resource without marking it changed.
func GetResource[T any](sto *Storage) (*T, bool) {
	cell := sto.resourceCell(reflect.TypeFor[T]())
	if cell == nil {
		return nil, false
	}
	return cell.value.(*T), true
}

// GetResourceMut returns a pointer to the T resource and marks it changed.
func GetResourceMut[T any](sto *Storage) (*T, bool) {
	cell := sto.resourceCell(reflect.TypeFor[T]())
	if cell == nil {
		return nil, false
	}
	cell.ticks.Changed = sto.writeTick()
	return cell.value.(*T), true
}

// HasResource reports whether a T resource is present.
func HasResource[T any](sto *Storage) bool {
	return sto.resourceCell(reflect.TypeFor[T]()) != nil
}

// RemoveResource deletes the T resource.
func RemoveResource[T any](sto *Storage) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	typ := reflect.TypeFor[T]()
	id, err := resourceIDFor(typ)
	if err != nil {
		return err
	}
	if !sto.resources.remove(id) {
		return ResourceNotFoundError{Type: typ}
	}
	return nil
}

func (sto *Storage) resourceCell(typ reflect.Type) *resourceCell {
	resourceTypes.mu.RLock()
	id, ok := resourceTypes.byType[typ]
	resourceTypes.mu.RUnlock()
	if !ok {
		return nil
	}
	return sto.resources.get(id)
}
