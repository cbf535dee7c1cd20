package depot

import (
	"fmt"
	"reflect"
)

type eventInstance[E any] struct {
	id    uint64
	event E
}

// Events is a double-buffered queue of E values stored as a resource.
//
// Send appends to the newer buffer. Update, which every schedule pass runs
// during sync, drops the older buffer and makes the newer one older. A reader
// that reads at least once per pass therefore never misses an event, and any
// event is gone two passes after it was sent.
type Events[E any] struct {
	older []eventInstance[E]
	newer []eventInstance[E]
	count uint64
}

// Send queues e and returns its sequence number.
func (ev *Events[E]) Send(e E) uint64 {
	id := ev.count
	ev.newer = append(ev.newer, eventInstance[E]{id: id, event: e})
	ev.count++
	return id
}

func (ev *Events[E]) SendBatch(events ...E) {
	for _, e := range events {
		ev.Send(e)
	}
}

// Update swaps the buffers and clears the oldest one.
func (ev *Events[E]) Update() {
	clear(ev.older)
	ev.older, ev.newer = ev.newer, ev.older[:0]
}

// Clear drops every buffered event. Readers skip what they had not read.
func (ev *Events[E]) Clear() {
	clear(ev.older)
	clear(ev.newer)
	ev.older = ev.older[:0]
	ev.newer = ev.newer[:0]
}

// Len returns how many events are buffered.
func (ev *Events[E]) Len() int {
	return len(ev.older) + len(ev.newer)
}

// Sent returns how many events were ever sent.
func (ev *Events[E]) Sent() uint64 {
	return ev.count
}

func (ev *Events[E]) oldest() uint64 {
	if len(ev.older) > 0 {
		return ev.older[0].id
	}
	if len(ev.newer) > 0 {
		return ev.newer[0].id
	}
	return ev.count
}

// EventCursor remembers how far one consumer has read an Events queue.
type EventCursor[E any] struct {
	next uint64
}

// Read returns the events sent since the previous Read, oldest first.
func (c *EventCursor[E]) Read(ev *Events[E]) []E {
	if ev == nil {
		return nil
	}
	if oldest := ev.oldest(); c.next < oldest {
		Config.debug("event reader fell behind",
			"event", reflect.TypeFor[E]().String(),
			"missed", oldest-c.next,
		)
		c.next = oldest
	}
	var out []E
	for _, buf := range [][]eventInstance[E]{ev.older, ev.newer} {
		for _, inst := range buf {
			if inst.id >= c.next {
				out = append(out, inst.event)
			}
		}
	}
	c.next = ev.count
	return out
}

// Unread returns how many events Read would return.
func (c *EventCursor[E]) Unread(ev *Events[E]) int {
	if ev == nil {
		return 0
	}
	return int(ev.count - max(c.next, ev.oldest()))
}

type eventUpdater struct {
	id     ResourceID
	update func(cell *resourceCell)
}

// AddEvent makes E usable with EventWriter and EventReader by storing an
// empty Events[E] resource. Calling it again keeps the existing queue.
func AddEvent[E any](sto *Storage) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	id, err := resourceIDFor(reflect.TypeFor[Events[E]]())
	if err != nil {
		return err
	}
	if sto.resources.get(id) != nil {
		return nil
	}
	sto.resources.set(id, &Events[E]{}, sto.writeTick())
	sto.events = append(sto.events, eventUpdater{
		id: id,
		update: func(cell *resourceCell) {
			cell.value.(*Events[E]).Update()
		},
	})
	return nil
}

// UpdateEvents swaps the buffers of every queue added with AddEvent and of
// every removal log. Schedules call it at the end of each pass.
func (sto *Storage) UpdateEvents() {
	for _, u := range sto.events {
		if cell := sto.resources.get(u.id); cell != nil {
			u.update(cell)
		}
	}
	sto.removed.update()
}

func eventsRegistered[E any](sto *Storage, id ResourceID) error {
	if sto.resources.get(id) == nil {
		return fmt.Errorf("event %v was not added with AddEvent", reflect.TypeFor[E]())
	}
	return nil
}

// EventWriter is a system parameter that sends E events. It holds write
// access to the Events[E] resource.
type EventWriter[E any] struct {
	res ResMut[Events[E]]
}

func (w *EventWriter[E]) initParam(sto *Storage, meta *SystemMeta) error {
	if err := w.res.initParam(sto, meta); err != nil {
		return err
	}
	return eventsRegistered[E](sto, w.res.id)
}

func (w *EventWriter[E]) fetchParam(run *systemRun) {
	w.res.fetchParam(run)
}

func (w *EventWriter[E]) Send(e E) uint64 {
	ev := w.res.Get()
	if ev == nil {
		panic(ResourceNotFoundError{Type: reflect.TypeFor[Events[E]]()})
	}
	return ev.Send(e)
}

func (w *EventWriter[E]) SendBatch(events ...E) {
	for _, e := range events {
		w.Send(e)
	}
}

// EventReader is a system parameter that reads E events. Each system keeps
// its own position, so every reader sees every event once.
type EventReader[E any] struct {
	res    Res[Events[E]]
	cursor EventCursor[E]
}

func (r *EventReader[E]) initParam(sto *Storage, meta *SystemMeta) error {
	r.cursor = EventCursor[E]{}
	if err := r.res.initParam(sto, meta); err != nil {
		return err
	}
	return eventsRegistered[E](sto, r.res.id)
}

func (r *EventReader[E]) fetchParam(run *systemRun) {
	r.res.fetchParam(run)
}

func (r *EventReader[E]) events() *Events[E] {
	if r.res.cell == nil {
		return nil
	}
	return r.res.cell.value.(*Events[E])
}

// Read returns the events sent since this system last read them.
func (r *EventReader[E]) Read() []E {
	return r.cursor.Read(r.events())
}

func (r *EventReader[E]) Len() int {
	return r.cursor.Unread(r.events())
}

// Clear marks every pending event as read.
func (r *EventReader[E]) Clear() {
	if ev := r.events(); ev != nil {
		r.cursor.next = ev.count
	}
}

// removals keeps, per component id, the entities that lost that component.
// Entries follow the same two-pass lifetime as events.
type removals struct {
	logs []*Events[Entity]
}

func (r *removals) log(id ComponentID) *Events[Entity] {
	if int(id) >= len(r.logs) {
		return nil
	}
	return r.logs[id]
}

func (r *removals) record(id ComponentID, e Entity) {
	for int(id) >= len(r.logs) {
		r.logs = append(r.logs, nil)
	}
	if r.logs[id] == nil {
		r.logs[id] = &Events[Entity]{}
	}
	r.logs[id].Send(e)
}

func (r *removals) update() {
	for _, l := range r.logs {
		if l != nil {
			l.Update()
		}
	}
}

// Removed returns the entities that lost their T component, or were
// despawned while holding one, within the last two schedule passes.
func Removed[T any](sto *Storage) []Entity {
	info, ok := componentInfoFor(reflect.TypeFor[T]())
	if !ok {
		return nil
	}
	var c EventCursor[Entity]
	return c.Read(sto.removed.log(info.id))
}

// RemovedComponents is a system parameter listing the entities that lost
// their T component since the system last read it. Removals only happen
// while no system runs, so it declares no access.
type RemovedComponents[T any] struct {
	id      ComponentID
	storage *Storage
	cursor  EventCursor[Entity]
}

func (r *RemovedComponents[T]) initParam(sto *Storage, _ *SystemMeta) error {
	info, err := registerComponent[T](TableStorage)
	if err != nil {
		return err
	}
	r.id = info.id
	r.storage = sto
	r.cursor = EventCursor[Entity]{}
	return nil
}

func (r *RemovedComponents[T]) fetchParam(*systemRun) {}

// Read returns the entities that lost T since the previous Read.
func (r *RemovedComponents[T]) Read() []Entity {
	return r.cursor.Read(r.storage.removed.log(r.id))
}

func (r *RemovedComponents[T]) Len() int {
	return r.cursor.Unread(r.storage.removed.log(r.id))
}
