package dkg

// Clocks computes the verifiable logical clock of every node:
//
//	vlc(n) = H(canonicalHash(n) || max(vlc(parents)))
//
// with the zero digest standing in for the parent clock of roots, and
// "max" taken over the numeric big-endian ordering of digests. Because
// the clock chains through the canonical hash, equal clocks imply equal
// causal history.
//
// The graph's topological order makes this a single iterative pass; no
// recursion, no revisiting. Cyclic inputs never reach this function:
// both construction paths reject them structurally first.
func Clocks(g *Graph) map[string]Hash {
	clocks := make(map[string]Hash, g.Len())
	for _, id := range g.order {
		n := g.nodes[id]
		parentClock := ZeroHash
		for _, pid := range n.parents {
			parentClock = maxHash(parentClock, clocks[pid])
		}
		clocks[id] = sum(n.canonical[:], parentClock[:])
	}
	return clocks
}
