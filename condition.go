package depot

import (
	"reflect"
	"strings"
)

// Condition decides, right before a system would run, whether it runs. It is
// evaluated on the worker running the system, so the data it reads is
// declared as part of that system's access.
type Condition struct {
	name string
	init func(sto *Storage, meta *SystemMeta) error
	eval func(run *systemRun) bool
}

func (c Condition) String() string {
	return c.name
}

// resourceCondition reads the T resource cell with read access declared.
func resourceCondition[T any](name string, eval func(cell *resourceCell, run *systemRun) bool) Condition {
	var id ResourceID
	return Condition{
		name: name + "[" + reflect.TypeFor[T]().String() + "]",
		init: func(_ *Storage, meta *SystemMeta) error {
			rid, err := resourceIDFor(reflect.TypeFor[T]())
			if err != nil {
				return err
			}
			id = rid
			meta.access.addResourceRead(id)
			return nil
		},
		eval: func(run *systemRun) bool {
			return eval(run.storage.resources.get(id), run)
		},
	}
}

// ResourceExists holds while a T resource is present.
func ResourceExists[T any]() Condition {
	return resourceCondition[T]("resource_exists", func(cell *resourceCell, _ *systemRun) bool {
		return cell != nil
	})
}

// ResourceChanged holds when the T resource was inserted or written since the
// system last ran.
func ResourceChanged[T any]() Condition {
	return resourceCondition[T]("resource_changed", func(cell *resourceCell, run *systemRun) bool {
		return cell != nil && cell.ticks.IsChanged(run.lastRun, run.thisRun)
	})
}

// ResourceEquals holds while the T resource is present and equal to v.
func ResourceEquals[T comparable](v T) Condition {
	return resourceCondition[T]("resource_equals", func(cell *resourceCell, _ *systemRun) bool {
		return cell != nil && *cell.value.(*T) == v
	})
}

// ResourceMatches holds while the T resource is present and pred accepts it.
func ResourceMatches[T any](pred func(T) bool) Condition {
	return resourceCondition[T]("resource_matches", func(cell *resourceCell, _ *systemRun) bool {
		return cell != nil && pred(*cell.value.(*T))
	})
}

// EventsPending holds when E events were sent since the condition last
// looked. Every call returns a condition with its own read position.
func EventsPending[E any]() Condition {
	var cursor EventCursor[E]
	c := resourceCondition[Events[E]]("events_pending", func(cell *resourceCell, _ *systemRun) bool {
		if cell == nil {
			return false
		}
		return len(cursor.Read(cell.value.(*Events[E]))) > 0
	})
	init := c.init
	c.init = func(sto *Storage, meta *SystemMeta) error {
		cursor = EventCursor[E]{}
		return init(sto, meta)
	}
	return c
}

// Not inverts c.
func Not(c Condition) Condition {
	return Condition{
		name: "not(" + c.name + ")",
		init: c.init,
		eval: func(run *systemRun) bool { return !c.eval(run) },
	}
}

// AnyOf holds when at least one of conditions holds. Every condition is
// evaluated so stateful ones advance together.
func AnyOf(conditions ...Condition) Condition {
	names := make([]string, len(conditions))
	for i, c := range conditions {
		names[i] = c.name
	}
	return Condition{
		name: "any(" + strings.Join(names, ", ") + ")",
		init: func(sto *Storage, meta *SystemMeta) error {
			for _, c := range conditions {
				if err := c.init(sto, meta); err != nil {
					return err
				}
			}
			return nil
		},
		eval: func(run *systemRun) bool {
			ok := false
			for _, c := range conditions {
				ok = c.eval(run) || ok
			}
			return ok
		},
	}
}
