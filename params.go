package depot

import "reflect"

// Res is a system parameter granting read access to the T resource.
type Res[T any] struct {
	id      ResourceID
	cell    *resourceCell
	lastRun Tick
	thisRun Tick
}

func (r *Res[T]) initParam(_ *Storage, meta *SystemMeta) error {
	id, err := resourceIDFor(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	r.id = id
	meta.access.addResourceRead(id)
	return nil
}

func (r *Res[T]) fetchParam(run *systemRun) {
	r.cell = run.storage.resources.get(r.id)
	r.lastRun = run.lastRun
	r.thisRun = run.thisRun
}

// Exists reports whether the resource was present when the system started.
func (r *Res[T]) Exists() bool {
	return r.cell != nil
}

// Value returns a copy of the resource, or the zero T when it is absent.
func (r *Res[T]) Value() T {
	if r.cell == nil {
		var zero T
		return zero
	}
	return *r.cell.value.(*T)
}

// IsChanged reports whether the resource was written since the system last ran.
func (r *Res[T]) IsChanged() bool {
	return r.cell != nil && r.cell.ticks.IsChanged(r.lastRun, r.thisRun)
}

// ResMut is a system parameter granting write access to the T resource.
type ResMut[T any] struct {
	id      ResourceID
	cell    *resourceCell
	thisRun Tick
}

func (r *ResMut[T]) initParam(_ *Storage, meta *SystemMeta) error {
	id, err := resourceIDFor(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	r.id = id
	meta.access.addResourceWrite(id)
	return nil
}

func (r *ResMut[T]) fetchParam(run *systemRun) {
	r.cell = run.storage.resources.get(r.id)
	r.thisRun = run.thisRun
}

func (r *ResMut[T]) Exists() bool {
	return r.cell != nil
}

// Get returns a pointer to the resource and marks it changed. It returns nil
// when the resource is absent.
func (r *ResMut[T]) Get() *T {
	if r.cell == nil {
		return nil
	}
	r.cell.ticks.Changed = r.thisRun
	return r.cell.value.(*T)
}

// Local is per-system state that survives between runs. It declares no access.
type Local[T any] struct {
	value T
}

func (l *Local[T]) initParam(*Storage, *SystemMeta) error { return nil }
func (l *Local[T]) fetchParam(*systemRun)                  {}

func (l *Local[T]) Get() *T {
	return &l.value
}

// SystemTicks exposes the ticks of the current run.
type SystemTicks struct {
	lastRun Tick
	thisRun Tick
}

func (t *SystemTicks) initParam(*Storage, *SystemMeta) error { return nil }

func (t *SystemTicks) fetchParam(run *systemRun) {
	t.lastRun = run.lastRun
	t.thisRun = run.thisRun
}

func (t *SystemTicks) LastRun() Tick {
	return t.lastRun
}

func (t *SystemTicks) ThisRun() Tick {
	return t.thisRun
}
