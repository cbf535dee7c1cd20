package depot

import (
	"github.com/TheBitDrifter/mask"
)

// QueryState caches which archetypes of one storage match a query. The cache
// only grows: archetypes created after the last update are scanned on the
// next one.
type QueryState struct {
	storage   *Storage
	fetch     []fetchTerm
	filter    QueryNode
	required  mask.Mask
	rowFilter bool
	access    QueryAccess

	matched []*archetype
	seen    int
}

func newQueryState(sto *Storage, q *Query) (*QueryState, error) {
	qs := &QueryState{
		storage: sto,
		filter:  q.filter(),
	}
	for i, term := range q.fetch {
		for _, prev := range q.fetch[:i] {
			if prev.info.id == term.info.id {
				return nil, DuplicateComponentError{Type: term.info.typ}
			}
		}
		qs.fetch = append(qs.fetch, term)
		switch term.access {
		case accessWrite:
			qs.access.addWrite(term.info.id)
			qs.access.require(term.info.id)
			qs.required.Mark(uint32(term.info.id))
		case accessRead:
			qs.access.addRead(term.info.id)
			qs.access.require(term.info.id)
			qs.required.Mark(uint32(term.info.id))
		case accessOptional:
			qs.access.addRead(term.info.id)
		}
	}
	if qs.filter != nil {
		qs.rowFilter = qs.filter.rowFiltered()
		qs.filter.collectAccess(&qs.access, true)
	}
	qs.update()
	return qs, nil
}

// update scans archetypes created since the previous call.
func (qs *QueryState) update() {
	all := qs.storage.archetypes.asSlice
	for _, a := range all[qs.seen:] {
		if qs.matches(a) {
			qs.matched = append(qs.matched, a)
		}
	}
	qs.seen = len(all)
}

func (qs *QueryState) matches(a *archetype) bool {
	if !a.mask.ContainsAll(qs.required) {
		return false
	}
	return qs.filter == nil || qs.filter.Evaluate(a)
}

// Cursor returns a cursor for use outside of systems. Its Added and Changed
// filters see writes made since the most recent schedule pass began.
func (qs *QueryState) Cursor() *Cursor {
	qs.update()
	return newCursor(qs, qs.storage.lastChangeTick, qs.storage.ChangeTick())
}

// Get returns a cursor positioned on e when e matches the query.
func (qs *QueryState) Get(e Entity) (*Cursor, bool) {
	qs.update()
	return qs.get(e, qs.storage.lastChangeTick, qs.storage.ChangeTick())
}

func (qs *QueryState) get(e Entity, lastRun, thisRun Tick) (*Cursor, bool) {
	loc, ok := qs.storage.entities.location(e)
	if !ok {
		return nil, false
	}
	a := qs.storage.archetypes.get(loc.Archetype)
	if !qs.matches(a) {
		return nil, false
	}
	if qs.rowFilter && !qs.filter.matchesRow(qs.storage, a, int(loc.Row), lastRun, thisRun) {
		return nil, false
	}
	c := newCursor(qs, lastRun, thisRun)
	c.pin(a, int(loc.Row))
	return c, true
}

// Count returns how many rows the query currently yields.
func (qs *QueryState) Count() int {
	return qs.Cursor().TotalMatched()
}

// MatchedArchetypes returns the archetypes the query has matched so far.
func (qs *QueryState) MatchedArchetypes() []Archetype {
	qs.update()
	out := make([]Archetype, len(qs.matched))
	for i, a := range qs.matched {
		out[i] = a
	}
	return out
}

// Access returns the component access the query needs.
func (qs *QueryState) Access() QueryAccess {
	return qs.access
}
