package dkg

import (
	"sort"

	"arbiter-backend/internal/errors"
)

// Builder accumulates nodes in causal order and freezes them into an
// immutable Graph. It is the only mutable stage of graph construction
// and is meant for single-owner use; the Graph it builds is safe to
// share.
type Builder struct {
	nodes map[string]*Node
	order []string
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]*Node)}
}

// AddNode appends a node to the graph under construction.
//
// Re-adding a node identical to one already present is a no-op.
// Violations fail with a structural error: CONFLICTING_NODE when the id
// is taken by different content, MISSING_PARENT when a parent has not
// been added yet, NON_MONOTONIC_TIME when the node predates one of its
// parents.
func (b *Builder) AddNode(n *Node) error {
	if n == nil {
		return errors.Structural(errors.CodeInvalidNode, "node must not be nil").
			WithOperation("AddNode").Build()
	}
	if existing, ok := b.nodes[n.ID()]; ok {
		if existing.EqualContent(n) {
			return nil
		}
		return errors.Structural(errors.CodeConflictingNode, "node id already present with different content").
			WithOperation("AddNode").WithResource(n.ID()).Build()
	}
	for _, pid := range n.parents {
		parent, ok := b.nodes[pid]
		if !ok {
			return errors.Structural(errors.CodeMissingParent, "parent not present in graph").
				WithOperation("AddNode").WithResource(n.ID()).
				WithDetails(map[string]interface{}{"parent_id": pid}).Build()
		}
		if n.Timestamp().Before(parent.Timestamp()) {
			return errors.Structural(errors.CodeNonMonotonicTime, "node predates its parent").
				WithOperation("AddNode").WithResource(n.ID()).
				WithDetails(map[string]interface{}{"parent_id": pid}).Build()
		}
	}
	b.nodes[n.ID()] = n
	b.order = append(b.order, n.ID())
	return nil
}

// AddMessage lifts a thread message into a node and appends it.
func (b *Builder) AddMessage(m Message) error {
	n, err := NodeFromMessage(m)
	if err != nil {
		return err
	}
	return b.AddNode(n)
}

// Len returns the number of nodes added so far.
func (b *Builder) Len() int { return len(b.order) }

// Build freezes the accumulated nodes into an immutable Graph. The
// builder remains usable; the returned graph never changes.
func (b *Builder) Build() *Graph {
	nodes := make(map[string]*Node, len(b.nodes))
	for id, n := range b.nodes {
		nodes[id] = n
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	return freeze(nodes, order)
}

// Reconstruct builds a frozen graph from an unordered node set, for
// graphs loaded back from storage. Unlike Builder.AddNode it tolerates
// any input order, so it must also rule out parent cycles, which the
// ordered path cannot produce.
func Reconstruct(nodes []*Node) (*Graph, error) {
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, errors.Structural(errors.CodeInvalidNode, "node must not be nil").
				WithOperation("Reconstruct").Build()
		}
		if existing, ok := byID[n.ID()]; ok {
			if existing.EqualContent(n) {
				continue
			}
			return nil, errors.Structural(errors.CodeConflictingNode, "node id already present with different content").
				WithOperation("Reconstruct").WithResource(n.ID()).Build()
		}
		byID[n.ID()] = n
	}

	for _, n := range byID {
		for _, pid := range n.parents {
			parent, ok := byID[pid]
			if !ok {
				return nil, errors.Structural(errors.CodeMissingParent, "parent not present in graph").
					WithOperation("Reconstruct").WithResource(n.ID()).
					WithDetails(map[string]interface{}{"parent_id": pid}).Build()
			}
			if n.Timestamp().Before(parent.Timestamp()) {
				return nil, errors.Structural(errors.CodeNonMonotonicTime, "node predates its parent").
					WithOperation("Reconstruct").WithResource(n.ID()).
					WithDetails(map[string]interface{}{"parent_id": pid}).Build()
			}
		}
	}

	order, err := topologicalOrder(byID)
	if err != nil {
		return nil, err
	}
	return freeze(byID, order), nil
}

// topologicalOrder runs Kahn's algorithm over the node set. Nodes left
// with unresolved parents afterwards form a cycle, which is rejected
// before any derived quantity is computed. The ready set is drained in
// (timestamp, id) order so the result is deterministic.
func topologicalOrder(nodes map[string]*Node) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	children := make(map[string][]string, len(nodes))
	for id, n := range nodes {
		indegree[id] += 0
		for _, pid := range n.parents {
			indegree[id]++
			children[pid] = append(children[pid], id)
		}
	}

	ready := make([]string, 0, len(nodes))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	less := func(a, b string) bool {
		na, nb := nodes[a], nodes[b]
		if !na.Timestamp().Equal(nb.Timestamp()) {
			return na.Timestamp().Before(nb.Timestamp())
		}
		return a < b
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := children[id]
		sort.Slice(next, func(i, j int) bool { return less(next[i], next[j]) })
		for _, child := range next {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, errors.Structural(errors.CodeCycleDetected, "parent relation contains a cycle").
			WithOperation("Reconstruct").Build()
	}
	return order, nil
}

// Graph is an immutable causal graph snapshot. All audit, analytics and
// attribution transforms run against a Graph; none of them mutate it.
type Graph struct {
	nodes     map[string]*Node
	children  map[string][]string
	order     []string
	roots     []string
	terminals []string
	authors   []string
}

func freeze(nodes map[string]*Node, order []string) *Graph {
	children := make(map[string][]string, len(nodes))
	for _, id := range order {
		for _, pid := range nodes[id].parents {
			children[pid] = append(children[pid], id)
		}
	}
	for pid := range children {
		sort.Strings(children[pid])
	}

	var roots, terminals []string
	authorSet := make(map[string]struct{})
	for _, id := range order {
		n := nodes[id]
		if n.IsRoot() {
			roots = append(roots, id)
		}
		if len(children[id]) == 0 {
			terminals = append(terminals, id)
		}
		authorSet[n.Author()] = struct{}{}
	}

	authors := make([]string, 0, len(authorSet))
	for a := range authorSet {
		authors = append(authors, a)
	}
	sort.Strings(authors)

	return &Graph{
		nodes:     nodes,
		children:  children,
		order:     order,
		roots:     roots,
		terminals: terminals,
		authors:   authors,
	}
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.order) }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether an id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in topological order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Order returns the node ids in topological order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Roots returns ids of nodes without parents, in topological order.
func (g *Graph) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Terminals returns ids of nodes without children, in topological order.
func (g *Graph) Terminals() []string {
	out := make([]string, len(g.terminals))
	copy(out, g.terminals)
	return out
}

// Parents returns the sorted parent ids of a node.
func (g *Graph) Parents(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return n.Parents()
}

// Children returns the sorted child ids of a node.
func (g *Graph) Children(id string) []string {
	kids := g.children[id]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}

// Authors returns the sorted set of participants present in the graph.
func (g *Graph) Authors() []string {
	out := make([]string, len(g.authors))
	copy(out, g.authors)
	return out
}

// NodesByAuthor returns the author's nodes in topological order.
func (g *Graph) NodesByAuthor(author string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if g.nodes[id].Author() == author {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// Depths returns the causal depth of every node: roots have depth 1 and
// every other node is one past its deepest parent. Computed in a single
// pass over the topological order, never by recursion.
func (g *Graph) Depths() map[string]int {
	depths := make(map[string]int, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		depth := 1
		for _, pid := range n.parents {
			if d := depths[pid]; d+1 > depth {
				depth = d + 1
			}
		}
		depths[id] = depth
	}
	return depths
}
