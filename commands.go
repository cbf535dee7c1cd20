package depot

import (
	"errors"
	"fmt"

	"github.com/TheBitDrifter/bark"
)

type commandType int

const (
	opSpawn commandType = iota
	opDespawn
	opInsert
	opRemove
	opRun
	opInsertResource
)

type command struct {
	typ      commandType
	entity   Entity
	values   []any
	comps    []Component
	fn       func(*Storage) error
	resource any
}

// Commands records structural changes to apply to a Storage later. Each
// system gets its own buffer; the schedule applies buffers in system
// registration order and each buffer in FIFO order.
type Commands struct {
	storage        *Storage
	ops            []command
	next           int
	pendingDespawn map[Entity]struct{}
}

func newCommands(sto *Storage) *Commands {
	return &Commands{
		storage:        sto,
		pendingDespawn: make(map[Entity]struct{}),
	}
}

func (c *Commands) initParam(sto *Storage, meta *SystemMeta) error {
	c.storage = sto
	c.pendingDespawn = make(map[Entity]struct{})
	meta.buffers = append(meta.buffers, c)
	return nil
}

func (c *Commands) fetchParam(*systemRun) {}

// Spawn reserves an entity that will hold components once the buffer is
// applied. The returned entity may be used in later commands right away.
// Component types must already be registered with FactoryNewComponent or
// FactoryNewSparseComponent; an unregistered type fails when the buffer is
// applied and the reserved entity is released.
func (c *Commands) Spawn(components ...any) Entity {
	e := c.storage.entities.reserve()
	c.ops = append(c.ops, command{typ: opSpawn, entity: e, values: components})
	return e
}

// Despawn queues e for removal. Repeated despawns of e collapse into one.
func (c *Commands) Despawn(e Entity) {
	if _, exists := c.pendingDespawn[e]; exists {
		return
	}
	c.pendingDespawn[e] = struct{}{}
	c.ops = append(c.ops, command{typ: opDespawn, entity: e})
}

func (c *Commands) Insert(e Entity, components ...any) {
	c.ops = append(c.ops, command{typ: opInsert, entity: e, values: components})
}

func (c *Commands) Remove(e Entity, components ...Component) {
	c.ops = append(c.ops, command{typ: opRemove, entity: e, comps: components})
}

// Run queues fn to be called with exclusive access to the storage.
func (c *Commands) Run(fn func(*Storage) error) {
	c.ops = append(c.ops, command{typ: opRun, fn: fn})
}

func (c *Commands) InsertResource(v any) {
	c.ops = append(c.ops, command{typ: opInsertResource, resource: v})
}

// Len returns the number of queued commands.
func (c *Commands) Len() int {
	return len(c.ops) - c.next
}

// Apply replays the queued commands against the storage and empties the
// buffer. Commands aimed at entities that no longer exist are skipped. Every
// other failure is collected and returned once the buffer is drained.
func (c *Commands) Apply() error {
	sto := c.storage
	if sto.Locked() {
		return LockedStorageError{}
	}
	sto.flushReserved()

	var errs []error
	for c.next < len(c.ops) {
		op := c.ops[c.next]
		c.next++
		if err := c.applyOp(sto, op); err != nil {
			if IsNotFound(err) {
				Config.debug("skipping queued command", bark.KeyError, err.Error())
				continue
			}
			errs = append(errs, err)
		}
	}
	c.reset()
	return errors.Join(errs...)
}

func (c *Commands) applyOp(sto *Storage, op command) error {
	switch op.typ {
	case opSpawn:
		if err := sto.Insert(op.entity, op.values...); err != nil {
			sto.Despawn(op.entity)
			return fmt.Errorf("failed to process queued spawn: %w", err)
		}
	case opDespawn:
		if !sto.Despawn(op.entity) {
			return EntityNotFoundError{Entity: op.entity}
		}
	case opInsert:
		if err := sto.Insert(op.entity, op.values...); err != nil {
			if IsNotFound(err) {
				return err
			}
			return fmt.Errorf("failed to process queued insert: %w", err)
		}
	case opRemove:
		if err := sto.Remove(op.entity, op.comps...); err != nil {
			if IsNotFound(err) {
				return err
			}
			return fmt.Errorf("failed to process queued remove: %w", err)
		}
	case opRun:
		if err := op.fn(sto); err != nil {
			return err
		}
	case opInsertResource:
		if err := sto.InsertResource(op.resource); err != nil {
			return fmt.Errorf("failed to process queued resource: %w", err)
		}
	}
	return nil
}

// discard drops the commands not applied yet. Entities reserved by Spawn are
// released so their ids do not leak.
func (c *Commands) discard() {
	sto := c.storage
	sto.flushReserved()
	for _, op := range c.ops[c.next:] {
		if op.typ == opSpawn {
			sto.Despawn(op.entity)
		}
	}
	c.reset()
}

func (c *Commands) reset() {
	clear(c.ops)
	c.ops = c.ops[:0]
	c.next = 0
	clear(c.pendingDespawn)
}
