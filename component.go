package depot

import (
	"reflect"
	"sync"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// MaxComponentTypes is the number of distinct component types a process may
// register. Archetype and access masks hold one bit per type.
const MaxComponentTypes = mask.MaxBits

// ComponentID is the dense, process-stable id of a component type.
type ComponentID uint32

// StorageKind says where the values of a component type live.
type StorageKind uint8

const (
	// TableStorage keeps values in the archetype's columns. Iteration is
	// fast; adding or removing the component moves the whole row.
	TableStorage StorageKind = iota
	// SparseStorage keeps values in one sparse set per type keyed by entity
	// index. Adding or removing the component leaves the row's other values
	// in place.
	SparseStorage
)

func (k StorageKind) String() string {
	if k == SparseStorage {
		return "sparse"
	}
	return "table"
}

type componentInfo struct {
	id        ComponentID
	typ       reflect.Type
	size      uintptr
	align     uintptr
	elem      table.ElementType
	kind      StorageKind
	newColumn func() column
	newSparse func() sparseSet
	drops     bool
}

type componentRegistry struct {
	mu     sync.RWMutex
	schema table.Schema
	byType map[reflect.Type]*componentInfo
	byID   []*componentInfo
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		schema: table.Factory.NewSchema(),
		byType: make(map[reflect.Type]*componentInfo),
	}
}

var components = newComponentRegistry()

func (r *componentRegistry) lookup(typ reflect.Type) (*componentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byType[typ]
	return info, ok
}

// register records elem under the next schema row. The first registration of
// a type decides its storage kind.
func (r *componentRegistry) register(elem table.ElementType, kind StorageKind, newColumn func() column, newSparse func() sparseSet) (*componentInfo, error) {
	typ := elem.Type()
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byType[typ]; ok {
		return info, nil
	}

	id := r.schema.RowIndexFor(elem)
	if id >= MaxComponentTypes || !r.schema.Contains(elem) {
		return nil, TooManyComponentsError{Type: typ}
	}
	r.schema.Register(elem)
	dropper := reflect.TypeFor[Dropper]()
	info := &componentInfo{
		id:        ComponentID(id),
		typ:       typ,
		size:      typ.Size(),
		align:     uintptr(typ.Align()),
		elem:      elem,
		kind:      kind,
		newColumn: newColumn,
		newSparse: newSparse,
		drops:     typ.Implements(dropper) || reflect.PointerTo(typ).Implements(dropper),
	}
	r.byType[typ] = info
	for int(id) >= len(r.byID) {
		r.byID = append(r.byID, nil)
	}
	r.byID[id] = info
	return info, nil
}

func registerComponent[T any](kind StorageKind) (*componentInfo, error) {
	if info, ok := components.lookup(reflect.TypeFor[T]()); ok {
		return info, nil
	}
	return components.register(
		table.FactoryNewElementType[T](),
		kind,
		func() column { return &typedColumn[T]{} },
		func() sparseSet { return &typedSparseSet[T]{} },
	)
}

func mustRegisterComponent[T any](kind StorageKind) *componentInfo {
	info, err := registerComponent[T](kind)
	if err != nil {
		panic(err)
	}
	return info
}

func componentInfoOf(id ComponentID) *componentInfo {
	components.mu.RLock()
	defer components.mu.RUnlock()
	return components.byID[id]
}

func componentInfoFor(typ reflect.Type) (*componentInfo, bool) {
	return components.lookup(typ)
}

// ComponentInfo describes the layout recorded for a registered component.
type ComponentInfo struct {
	ID      ComponentID
	Type    reflect.Type
	Size    uintptr
	Align   uintptr
	Storage StorageKind
	Drops   bool
}

// DescribeComponent returns the registered layout of id.
func DescribeComponent(id ComponentID) (ComponentInfo, bool) {
	components.mu.RLock()
	defer components.mu.RUnlock()
	if int(id) >= len(components.byID) || components.byID[id] == nil {
		return ComponentInfo{}, false
	}
	info := components.byID[id]
	return ComponentInfo{ID: info.id, Type: info.typ, Size: info.size, Align: info.align, Storage: info.kind, Drops: info.drops}, true
}
