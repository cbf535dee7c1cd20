package depot

// QueryTerm is a type-level query term. Fetch terms (Read, Write, Optional)
// add columns to the cursor; filter terms (With, Without, Added, Changed,
// Or) only restrict which rows are yielded.
type QueryTerm interface {
	applyTerm(q *Query)
	termNode() QueryNode
}

type (
	// Read fetches T by value.
	Read[T any] struct{}
	// Write fetches T mutably.
	Write[T any] struct{}
	// Optional fetches T by value when the row has one.
	Optional[T any] struct{}
	// With requires T without fetching it.
	With[T any] struct{}
	// Without excludes rows that own T.
	Without[T any] struct{}
	// Added keeps rows whose T was inserted since the system last ran.
	Added[T any] struct{}
	// Changed keeps rows whose T was inserted or written since the system
	// last ran.
	Changed[T any] struct{}
	// Or keeps rows matching either term.
	Or[A, B QueryTerm] struct{}
)

func (Read[T]) applyTerm(q *Query) { q.Read(ComponentOf[T]()) }
func (Read[T]) termNode() QueryNode {
	return newLeafNode(leafWith, []Component{ComponentOf[T]()})
}

func (Write[T]) applyTerm(q *Query) { q.Write(ComponentOf[T]()) }
func (Write[T]) termNode() QueryNode {
	return newLeafNode(leafWith, []Component{ComponentOf[T]()})
}

func (Optional[T]) applyTerm(q *Query) { q.Optional(ComponentOf[T]()) }

// termNode of an optional term matches everything.
func (Optional[T]) termNode() QueryNode {
	return newCompositeNode(OpAnd, nil)
}

func (w With[T]) applyTerm(q *Query) { q.Where(w.termNode()) }
func (With[T]) termNode() QueryNode {
	return newLeafNode(leafWith, []Component{ComponentOf[T]()})
}

func (w Without[T]) applyTerm(q *Query) { q.Where(w.termNode()) }
func (Without[T]) termNode() QueryNode {
	return newLeafNode(leafWithout, []Component{ComponentOf[T]()})
}

func (a Added[T]) applyTerm(q *Query) { q.Where(a.termNode()) }
func (Added[T]) termNode() QueryNode {
	return newLeafNode(leafAdded, []Component{ComponentOf[T]()})
}

func (c Changed[T]) applyTerm(q *Query) { q.Where(c.termNode()) }
func (Changed[T]) termNode() QueryNode {
	return newLeafNode(leafChanged, []Component{ComponentOf[T]()})
}

func (o Or[A, B]) applyTerm(q *Query) { q.Where(o.termNode()) }
func (Or[A, B]) termNode() QueryNode {
	var a A
	var b B
	node := newCompositeNode(OpOr, nil)
	node.children = append(node.children, a.termNode(), b.termNode())
	return node
}

// queryParam is the state shared by Query1 through Query5.
type queryParam struct {
	state   *QueryState
	lastRun Tick
	thisRun Tick
}

func (qp *queryParam) init(sto *Storage, meta *SystemMeta, terms ...QueryTerm) error {
	q := newQuery()
	for _, t := range terms {
		t.applyTerm(q)
	}
	state, err := newQueryState(sto, q)
	if err != nil {
		return err
	}
	qp.state = state
	meta.access.addQuery(state.access)
	return nil
}

func (qp *queryParam) fetchParam(run *systemRun) {
	qp.lastRun = run.lastRun
	qp.thisRun = run.thisRun
}

// Iter returns a cursor over the rows the query yields for this run.
func (qp *queryParam) Iter() *Cursor {
	qp.state.update()
	return newCursor(qp.state, qp.lastRun, qp.thisRun)
}

// Get returns a cursor positioned on e when e matches the query.
func (qp *queryParam) Get(e Entity) (*Cursor, bool) {
	qp.state.update()
	return qp.state.get(e, qp.lastRun, qp.thisRun)
}

// Count returns the number of rows Iter would yield.
func (qp *queryParam) Count() int {
	return qp.Iter().TotalMatched()
}

func (qp *queryParam) State() *QueryState {
	return qp.state
}

func termOf[T QueryTerm]() QueryTerm {
	var t T
	return t
}

// Query1 is a system parameter querying one term.
type Query1[A QueryTerm] struct{ queryParam }

func (q *Query1[A]) initParam(sto *Storage, meta *SystemMeta) error {
	return q.init(sto, meta, termOf[A]())
}

type Query2[A, B QueryTerm] struct{ queryParam }

func (q *Query2[A, B]) initParam(sto *Storage, meta *SystemMeta) error {
	return q.init(sto, meta, termOf[A](), termOf[B]())
}

type Query3[A, B, C QueryTerm] struct{ queryParam }

func (q *Query3[A, B, C]) initParam(sto *Storage, meta *SystemMeta) error {
	return q.init(sto, meta, termOf[A](), termOf[B](), termOf[C]())
}

type Query4[A, B, C, D QueryTerm] struct{ queryParam }

func (q *Query4[A, B, C, D]) initParam(sto *Storage, meta *SystemMeta) error {
	return q.init(sto, meta, termOf[A](), termOf[B](), termOf[C](), termOf[D]())
}

type Query5[A, B, C, D, E QueryTerm] struct{ queryParam }

func (q *Query5[A, B, C, D, E]) initParam(sto *Storage, meta *SystemMeta) error {
	return q.init(sto, meta, termOf[A](), termOf[B](), termOf[C](), termOf[D](), termOf[E]())
}
