package depot

type Operation int

const (
	OpAnd Operation = iota
	OpOr
	OpNot
)

type termAccess int

const (
	accessRead termAccess = iota
	accessWrite
	accessOptional
)

func (a termAccess) String() string {
	switch a {
	case accessWrite:
		return "write"
	case accessOptional:
		return "optional"
	}
	return "read"
}

type fetchTerm struct {
	info   *componentInfo
	access termAccess
}

type leafKind int

const (
	leafWith leafKind = iota
	leafWithout
	leafAdded
	leafChanged
)

type compositeNode struct {
	op         Operation
	children   []QueryNode
	components []Component
}

type leafNode struct {
	kind       leafKind
	components []Component
}

// Query describes which components a query fetches and how rows are filtered.
// Build one with Factory.NewQuery and turn it into a QueryState with
// Factory.NewQueryState.
type Query struct {
	fetch   []fetchTerm
	root    QueryNode
	filters []QueryNode
}

func newQuery() *Query {
	return &Query{}
}

func newCompositeNode(op Operation, components []Component) *compositeNode {
	return &compositeNode{
		op:         op,
		children:   make([]QueryNode, 0),
		components: components,
	}
}

func newLeafNode(kind leafKind, components []Component) *leafNode {
	return &leafNode{kind: kind, components: components}
}

func (n *compositeNode) Evaluate(a Archetype) bool {
	switch n.op {
	case OpAnd:
		for _, c := range n.components {
			if !a.Has(c.ID()) {
				return false
			}
		}
		for _, child := range n.children {
			if !child.Evaluate(a) {
				return false
			}
		}
		return true

	case OpOr:
		for _, c := range n.components {
			if a.Has(c.ID()) {
				return true
			}
		}
		for _, child := range n.children {
			if child.Evaluate(a) {
				return true
			}
		}
		return false

	case OpNot:
		// A change filter under Not can only be decided per row.
		if n.rowFiltered() {
			return true
		}
		for _, c := range n.components {
			if a.Has(c.ID()) {
				return false
			}
		}
		for _, child := range n.children {
			if child.Evaluate(a) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *compositeNode) matchesRow(sto *Storage, a *archetype, row int, lastRun, thisRun Tick) bool {
	switch n.op {
	case OpAnd:
		for _, c := range n.components {
			if !a.Has(c.ID()) {
				return false
			}
		}
		for _, child := range n.children {
			if !child.matchesRow(sto, a, row, lastRun, thisRun) {
				return false
			}
		}
		return true

	case OpOr:
		for _, c := range n.components {
			if a.Has(c.ID()) {
				return true
			}
		}
		for _, child := range n.children {
			if child.matchesRow(sto, a, row, lastRun, thisRun) {
				return true
			}
		}
		return false

	case OpNot:
		for _, c := range n.components {
			if a.Has(c.ID()) {
				return false
			}
		}
		for _, child := range n.children {
			if child.matchesRow(sto, a, row, lastRun, thisRun) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *compositeNode) rowFiltered() bool {
	for _, child := range n.children {
		if child.rowFiltered() {
			return true
		}
	}
	return false
}

func (n *compositeNode) collectAccess(acc *QueryAccess, positive bool) {
	switch n.op {
	case OpAnd:
		if positive {
			for _, c := range n.components {
				acc.require(c.ID())
			}
		}
		for _, child := range n.children {
			child.collectAccess(acc, positive)
		}
	case OpOr:
		for _, child := range n.children {
			child.collectAccess(acc, false)
		}
	case OpNot:
		if positive {
			for _, c := range n.components {
				acc.exclude(c.ID())
			}
		}
		for _, child := range n.children {
			child.collectAccess(acc, false)
		}
	}
}

func (n *leafNode) Evaluate(a Archetype) bool {
	if n.kind == leafWithout {
		for _, c := range n.components {
			if a.Has(c.ID()) {
				return false
			}
		}
		return true
	}
	for _, c := range n.components {
		if !a.Has(c.ID()) {
			return false
		}
	}
	return true
}

func (n *leafNode) matchesRow(sto *Storage, a *archetype, row int, lastRun, thisRun Tick) bool {
	switch n.kind {
	case leafAdded, leafChanged:
		for _, c := range n.components {
			ticks := sto.ticksAt(a, row, c.ID())
			if ticks == nil {
				return false
			}
			if n.kind == leafAdded && !ticks.IsAdded(lastRun, thisRun) {
				return false
			}
			if n.kind == leafChanged && !ticks.IsChanged(lastRun, thisRun) {
				return false
			}
		}
		return true
	}
	return n.Evaluate(a)
}

func (n *leafNode) rowFiltered() bool {
	return n.kind == leafAdded || n.kind == leafChanged
}

func (n *leafNode) collectAccess(acc *QueryAccess, positive bool) {
	for _, c := range n.components {
		switch n.kind {
		case leafWith:
			if positive {
				acc.require(c.ID())
			}
		case leafWithout:
			if positive {
				acc.exclude(c.ID())
			}
		case leafAdded, leafChanged:
			acc.addRead(c.ID())
			if positive {
				acc.require(c.ID())
			}
		}
	}
}

// Read adds components the query fetches by value.
func (q *Query) Read(components ...Component) *Query {
	return q.addFetch(accessRead, components)
}

// Write adds components the query fetches mutably.
func (q *Query) Write(components ...Component) *Query {
	return q.addFetch(accessWrite, components)
}

// Optional adds components fetched by value when present. They do not
// restrict which archetypes match.
func (q *Query) Optional(components ...Component) *Query {
	return q.addFetch(accessOptional, components)
}

func (q *Query) addFetch(access termAccess, components []Component) *Query {
	for _, c := range components {
		q.fetch = append(q.fetch, fetchTerm{info: componentInfoOf(c.ID()), access: access})
	}
	return q
}

// Where adds a filter node. Every node added this way must match.
func (q *Query) Where(nodes ...QueryNode) *Query {
	for _, node := range nodes {
		if node == q.root {
			q.root = nil
		}
	}
	q.filters = append(q.filters, nodes...)
	return q
}

// And, Or and Not build composite filter nodes from components and other
// nodes. The node built last becomes the query's root filter, so with nested
// calls the outermost one is in charge.
func (q *Query) And(items ...any) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpAnd, components)
	node.children = children
	q.root = node
	return node
}

func (q *Query) Or(items ...any) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpOr, components)
	node.children = children
	q.root = node
	return node
}

func (q *Query) Not(items ...any) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpNot, components)
	node.children = children
	q.root = node
	return node
}

// Without matches archetypes owning none of components.
func (q *Query) Without(components ...Component) QueryNode {
	return newLeafNode(leafWithout, components)
}

// Added matches rows whose components were all inserted since the
// observer last ran.
func (q *Query) Added(components ...Component) QueryNode {
	return newLeafNode(leafAdded, components)
}

// Changed matches rows whose components were all written since the
// observer last ran.
func (q *Query) Changed(components ...Component) QueryNode {
	return newLeafNode(leafChanged, components)
}

func (q *Query) processItems(items ...any) ([]Component, []QueryNode) {
	components := make([]Component, 0)
	children := make([]QueryNode, 0)

	for _, item := range items {
		switch v := item.(type) {
		case Component:
			components = append(components, v)
		case []Component:
			components = append(components, v...)
		case QueryNode:
			children = append(children, v)
		}
	}

	return components, children
}

// filter combines the root node and every Where node into one.
func (q *Query) filter() QueryNode {
	nodes := make([]QueryNode, 0, len(q.filters)+1)
	if q.root != nil {
		nodes = append(nodes, q.root)
	}
	nodes = append(nodes, q.filters...)
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	}
	node := newCompositeNode(OpAnd, nil)
	node.children = nodes
	return node
}

// Evaluate reports whether archetype satisfies the query's fetch and
// structural filter terms.
func (q *Query) Evaluate(archetype Archetype) bool {
	for _, term := range q.fetch {
		if term.access != accessOptional && !archetype.Has(term.info.id) {
			return false
		}
	}
	if f := q.filter(); f != nil {
		return f.Evaluate(archetype)
	}
	return true
}
