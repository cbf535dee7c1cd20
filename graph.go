package depot

import (
	"errors"
	"slices"
)

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) has(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) union(other bitset) {
	for i := range b {
		b[i] |= other[i]
	}
}

// graph is the ordering graph over a schedule's systems. Nodes are indices in
// registration order.
type graph struct {
	succ  [][]int
	adj   []bitset
	reach []bitset
}

func newGraph(n int) *graph {
	g := &graph{
		succ:  make([][]int, n),
		adj:   make([]bitset, n),
		reach: make([]bitset, n),
	}
	for i := range n {
		g.adj[i] = newBitset(n)
		g.reach[i] = newBitset(n)
	}
	return g
}

func (g *graph) len() int {
	return len(g.succ)
}

func (g *graph) addEdge(from, to int) {
	if g.adj[from].has(to) {
		return
	}
	g.adj[from].set(to)
	g.succ[from] = append(g.succ[from], to)
}

func (g *graph) indegrees() []int {
	in := make([]int, g.len())
	for _, succ := range g.succ {
		for _, v := range succ {
			in[v]++
		}
	}
	return in
}

// topoSort orders nodes so every edge points forward. Among ready nodes the
// one registered first wins. When the graph has a cycle it returns the nodes
// of one cycle instead.
func (g *graph) topoSort() (order, cycle []int) {
	in := g.indegrees()
	ready := make([]int, 0, g.len())
	for v, d := range in {
		if d == 0 {
			ready = append(ready, v)
		}
	}
	for len(ready) > 0 {
		slices.Sort(ready)
		u := ready[0]
		ready = ready[1:]
		order = append(order, u)
		for _, v := range g.succ[u] {
			in[v]--
			if in[v] == 0 {
				ready = append(ready, v)
			}
		}
	}
	if len(order) == g.len() {
		return order, nil
	}
	return nil, g.findCycle(in)
}

// findCycle walks predecessors among the nodes topoSort could not place.
// Each of them still has an unplaced predecessor, so the walk must repeat.
func (g *graph) findCycle(in []int) []int {
	preds := make([][]int, g.len())
	for u, succ := range g.succ {
		for _, v := range succ {
			preds[v] = append(preds[v], u)
		}
	}
	start := slices.IndexFunc(in, func(d int) bool { return d > 0 })
	pos := make(map[int]int)
	var path []int
	u := start
	for {
		if at, seen := pos[u]; seen {
			cycle := slices.Clone(path[at:])
			slices.Reverse(cycle)
			return cycle
		}
		pos[u] = len(path)
		path = append(path, u)
		for _, p := range preds[u] {
			if in[p] > 0 {
				u = p
				break
			}
		}
	}
}

// closure fills reach from a topological order.
func (g *graph) closure(order []int) {
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		for _, v := range g.succ[u] {
			g.reach[u].set(v)
			g.reach[u].union(g.reach[v])
		}
	}
}

func (g *graph) ordered(a, b int) bool {
	return g.reach[a].has(b) || g.reach[b].has(a)
}

// addOrderedEdge adds from -> to, which must not close a cycle, and keeps
// reach transitive.
func (g *graph) addOrderedEdge(from, to int) {
	g.addEdge(from, to)
	for u := range g.len() {
		if u == from || g.reach[u].has(from) {
			g.reach[u].set(to)
			g.reach[u].union(g.reach[to])
		}
	}
}

// plan is the result of planning: a DAG the executor can drain.
type plan struct {
	succ     [][]int
	indegree []int
	order    []int
}

// buildPlan turns explicit ordering edges into an execution plan. Exclusive
// systems are ordered against every system they are not already ordered
// with, by registration order. Any remaining pair of unordered systems with
// conflicting access is an error.
func buildPlan(systems []*System, edges [][2]int) (*plan, error) {
	n := len(systems)
	g := newGraph(n)
	for _, e := range edges {
		g.addEdge(e[0], e[1])
	}
	order, cycle := g.topoSort()
	if cycle != nil {
		names := make([]string, 0, len(cycle)+1)
		for _, v := range cycle {
			names = append(names, systems[v].meta.name)
		}
		names = append(names, systems[cycle[0]].meta.name)
		return nil, CycleError{Systems: names}
	}
	g.closure(order)

	for x := range n {
		if !systems[x].meta.exclusive {
			continue
		}
		for y := range n {
			if y == x || g.ordered(x, y) {
				continue
			}
			g.addOrderedEdge(min(x, y), max(x, y))
		}
	}

	var errs []error
	for i := range n {
		for j := i + 1; j < n; j++ {
			if g.ordered(i, j) {
				continue
			}
			a, b := &systems[i].meta, &systems[j].meta
			components, resources := a.access.Conflicts(&b.access)
			if len(components) == 0 && len(resources) == 0 {
				continue
			}
			errs = append(errs, ConflictingAccessError{
				First:      a.name,
				Second:     b.name,
				Components: components,
				Resources:  resources,
			})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, _ = g.topoSort()
	return &plan{
		succ:     g.succ,
		indegree: g.indegrees(),
		order:    order,
	}, nil
}
