/*
Package depot provides an archetype-based Entity-Component-System storage
engine with change detection and a parallel system scheduler.

Entities that own exactly the same set of component types share an archetype,
and each archetype keeps its components in one column per type. Every stored
value carries the tick it was added at and the tick it was last written at, so
queries can ask for rows that were Added or Changed since a system last ran.

Core Concepts:

  - Entity: A generation-checked handle. Stale handles are detected, never dereferenced.
  - Component: A plain Go value attached to an entity.
  - Archetype: The set of component types an entity currently owns.
  - Query: Fetch terms plus an And/Or/Not filter tree.
  - Commands: Structural changes deferred until the next sync point.
  - Schedule: Systems ordered by declared access and run on a worker pool.

Basic Usage:

	sto := depot.Factory.NewStorage()
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	sto.Spawn(Position{}, Velocity{X: 1})

	query := depot.Factory.NewQuery().Write(position).Read(velocity)
	state, _ := depot.Factory.NewQueryState(sto, query)
	for cursor := state.Cursor(); cursor.Next(); {
		pos := position.GetFromCursor(cursor)
		pos.X += velocity.ReadFromCursor(cursor).X
	}

Systems declare their access through their parameter types:

	move := depot.NewSystem1("move", func(q *depot.Query2[depot.Write[Position], depot.Read[Velocity]]) error {
		for cur := q.Iter(); cur.Next(); {
			depot.GetMut[Position](cur).X += depot.Get[Velocity](cur).X
		}
		return nil
	})

	schedule := depot.Factory.NewSchedule().AddSystems(move)
	if err := schedule.RunOnce(sto); err != nil {
		log.Fatal(err)
	}

Two systems that touch the same component, with at least one of them writing
it, must be ordered with Before, After or a set. Otherwise the schedule
refuses to build.
*/
package depot
