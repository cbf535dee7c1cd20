package depot

import "reflect"

// AccessibleComponent is a typed handle to a registered component. It is a
// Component, so it can be passed to query builders and Remove, and it reads
// values from cursors and entities without a type parameter at the call site.
type AccessibleComponent[T any] struct {
	info *componentInfo
}

var _ Component = AccessibleComponent[struct{}]{}

// FactoryNewComponent registers T with table storage, if needed, and returns
// its handle. It panics when the component type limit is reached.
func FactoryNewComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{info: mustRegisterComponent[T](TableStorage)}
}

// FactoryNewSparseComponent registers T with sparse storage. Use it for
// components that are added and removed often. A type keeps the storage it
// was first registered with.
func FactoryNewSparseComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{info: mustRegisterComponent[T](SparseStorage)}
}

// ComponentOf is FactoryNewComponent for call sites that only need the
// Component interface.
func ComponentOf[T any]() Component {
	return FactoryNewComponent[T]()
}

func (c AccessibleComponent[T]) ID() ComponentID {
	return c.info.id
}

func (c AccessibleComponent[T]) Type() reflect.Type {
	return c.info.typ
}

func (c AccessibleComponent[T]) Storage() StorageKind {
	return c.info.kind
}

// GetFromCursor returns a pointer to the value at the cursor and marks it
// changed. The query must fetch the component with Write.
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	slot := cursor.slotByID(c.info.id)
	cursor.markWritten(slot, c.info.typ)
	return cursorValue[T](cursor, slot)
}

// ReadFromCursor returns a copy of the value at the cursor.
func (c AccessibleComponent[T]) ReadFromCursor(cursor *Cursor) T {
	slot := cursor.slotByID(c.info.id)
	cursor.checkRead(slot, c.info.typ)
	return *cursorValue[T](cursor, slot)
}

// GetFromCursorSafe reads the value at the cursor, reporting false when the
// current row has none.
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, T) {
	var zero T
	slot := cursor.slotByID(c.info.id)
	if !cursor.present(slot) {
		return false, zero
	}
	return true, *cursorValue[T](cursor, slot)
}

// CheckCursor reports whether the archetype at the cursor stores the component.
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	return cursor.currentArchetype.Has(c.info.id)
}

// GetFromEntity returns a copy of e's value.
func (c AccessibleComponent[T]) GetFromEntity(sto *Storage, e Entity) (T, error) {
	var zero T
	if !sto.Contains(e) {
		return zero, EntityNotFoundError{Entity: e}
	}
	v, _, ok := componentPtr[T](sto, e, c.info)
	if !ok {
		return zero, ComponentNotFoundError{Entity: e, Type: c.info.typ}
	}
	return *v, nil
}
