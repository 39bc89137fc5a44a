// Package attribution turns graph structure into per-author contribution
// weights. The weights decide how the worker reward budget is split, so
// they are normalized to sum exactly 1.0 over the graph's authors and
// are fully deterministic for a given frozen graph.
package attribution

import (
	"sort"

	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// Method selects the attribution algorithm.
type Method string

const (
	// MethodBetweenness credits authors whose nodes sit on the shortest
	// causal paths between other nodes.
	MethodBetweenness Method = "betweenness"

	// MethodPathCount credits authors by how many root-to-terminal
	// causal paths run through their nodes.
	MethodPathCount Method = "path_count"
)

// ParseMethod validates a method name from configuration.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodBetweenness:
		return MethodBetweenness, nil
	case MethodPathCount:
		return MethodPathCount, nil
	default:
		return "", errors.Config("UNKNOWN_ATTRIBUTION_METHOD", "attribution method is not supported").
			WithOperation("ParseMethod").WithResource(s).Build()
	}
}

// Weights computes normalized contribution weights per author. Every
// author present in the graph gets an entry, zero included; the entries
// sum to 1.0 whenever the graph is non-empty.
//
// Betweenness degenerates on graphs too small or too flat to have
// interior nodes; those fall through to path counting, which assigns
// every node at least one path.
func Weights(g *dkg.Graph, method Method) (map[string]float64, error) {
	switch method {
	case MethodBetweenness, MethodPathCount:
	default:
		return nil, errors.Config("UNKNOWN_ATTRIBUTION_METHOD", "attribution method is not supported").
			WithOperation("Weights").WithResource(string(method)).Build()
	}

	if g.Len() == 0 {
		return map[string]float64{}, nil
	}

	perNode := map[string]float64{}
	if method == MethodBetweenness && g.Len() > 2 {
		perNode = betweenness(g)
	}
	if total(perNode) == 0 {
		perNode = pathCounts(g)
	}

	byAuthor := make(map[string]float64, len(g.Authors()))
	for _, author := range g.Authors() {
		byAuthor[author] = 0
	}
	for id, score := range perNode {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		byAuthor[n.Author()] += score
	}

	sum := total(byAuthor)
	if sum == 0 {
		return byAuthor, nil
	}
	for author := range byAuthor {
		byAuthor[author] /= sum
	}
	return byAuthor, nil
}

// betweenness counts, for every ordered reachable pair, the interior
// nodes of the shortest causal path between them. Paths follow child
// edges only; ties resolve to the first neighbor in sorted order so the
// result is deterministic.
func betweenness(g *dkg.Graph) map[string]float64 {
	scores := make(map[string]float64, g.Len())
	for _, id := range g.Order() {
		scores[id] = 0
	}

	for _, source := range g.Order() {
		prev := shortestPathTree(g, source)
		for target := range prev {
			if target == source {
				continue
			}
			// Credit the interior of the source->target path.
			for hop := prev[target]; hop != source && hop != ""; hop = prev[hop] {
				scores[hop]++
			}
		}
	}
	return scores
}

// shortestPathTree runs a breadth-first search from source over child
// edges, returning the predecessor of each reachable node.
func shortestPathTree(g *dkg.Graph, source string) map[string]string {
	prev := make(map[string]string)
	visited := map[string]bool{source: true}
	queue := []string{source}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range g.Children(current) {
			if visited[child] {
				continue
			}
			visited[child] = true
			prev[child] = current
			queue = append(queue, child)
		}
	}
	return prev
}

// pathCounts computes, per node, the number of root-to-terminal paths
// passing through it: paths from any root into the node times paths
// from the node out to any terminal. Both factors are single passes
// over the topological order.
func pathCounts(g *dkg.Graph) map[string]float64 {
	order := g.Order()

	incoming := make(map[string]float64, len(order))
	for _, id := range order {
		n, _ := g.Node(id)
		if n.IsRoot() {
			incoming[id] = 1
			continue
		}
		var sum float64
		for _, pid := range n.Parents() {
			sum += incoming[pid]
		}
		incoming[id] = sum
	}

	outgoing := make(map[string]float64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		children := g.Children(id)
		if len(children) == 0 {
			outgoing[id] = 1
			continue
		}
		var sum float64
		for _, child := range children {
			sum += outgoing[child]
		}
		outgoing[id] = sum
	}

	through := make(map[string]float64, len(order))
	for _, id := range order {
		through[id] = incoming[id] * outgoing[id]
	}
	return through
}

func total(m map[string]float64) float64 {
	var sum float64
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sum += m[k]
	}
	return sum
}
