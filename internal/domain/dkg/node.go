package dkg

import (
	"encoding/binary"
	"sort"
	"time"

	"arbiter-backend/internal/errors"
)

// Node is one vertex of the causal graph: an author's contribution at a
// point in time, bound to its payload digest and its causal parents.
// Nodes are immutable once constructed; the canonical hash is computed
// at construction and never changes.
type Node struct {
	id          string
	author      string
	timestamp   time.Time
	payloadHash Hash
	parents     []string
	canonical   Hash
}

// NewNode validates and constructs a node, digesting the raw payload
// into the payload hash. Parents are deduplicated and sorted; a node
// listing itself as a parent is rejected.
func NewNode(id, author string, timestamp time.Time, payload []byte, parents []string) (*Node, error) {
	return newNode(id, author, timestamp, HashPayload(payload), parents)
}

// ReconstructNode rebuilds a node from already-persisted primitives,
// applying the same validation as NewNode.
func ReconstructNode(id, author string, timestamp time.Time, payloadHash Hash, parents []string) (*Node, error) {
	return newNode(id, author, timestamp, payloadHash, parents)
}

func newNode(id, author string, timestamp time.Time, payloadHash Hash, parents []string) (*Node, error) {
	if id == "" {
		return nil, errors.Structural(errors.CodeInvalidNode, "node id must not be empty").
			WithOperation("NewNode").Build()
	}
	if author == "" {
		return nil, errors.Structural(errors.CodeInvalidNode, "node author must not be empty").
			WithOperation("NewNode").WithResource(id).Build()
	}
	if timestamp.IsZero() {
		return nil, errors.Structural(errors.CodeInvalidNode, "node timestamp must be set").
			WithOperation("NewNode").WithResource(id).Build()
	}

	normalized := normalizeParents(parents)
	for _, p := range normalized {
		if p == id {
			return nil, errors.Structural(errors.CodeInvalidNode, "node cannot be its own parent").
				WithOperation("NewNode").WithResource(id).Build()
		}
	}

	n := &Node{
		id:          id,
		author:      author,
		timestamp:   timestamp.UTC(),
		payloadHash: payloadHash,
		parents:     normalized,
	}
	n.canonical = canonicalHash(n.author, n.timestamp, n.id, n.payloadHash, n.parents)
	return n, nil
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Author returns the contributing participant.
func (n *Node) Author() string { return n.author }

// Timestamp returns the node's UTC timestamp.
func (n *Node) Timestamp() time.Time { return n.timestamp }

// PayloadHash returns the digest of the node payload.
func (n *Node) PayloadHash() Hash { return n.payloadHash }

// Parents returns a copy of the sorted parent id list.
func (n *Node) Parents() []string {
	out := make([]string, len(n.parents))
	copy(out, n.parents)
	return out
}

// IsRoot reports whether the node has no causal parents.
func (n *Node) IsRoot() bool { return len(n.parents) == 0 }

// CanonicalHash returns the canonical digest of the node.
func (n *Node) CanonicalHash() Hash { return n.canonical }

// EqualContent reports whether two nodes are the same logical node, by
// canonical hash.
func (n *Node) EqualContent(other *Node) bool {
	return other != nil && n.canonical == other.canonical
}

func normalizeParents(parents []string) []string {
	if len(parents) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(parents))
	out := make([]string, 0, len(parents))
	for _, p := range parents {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// canonicalHash digests the canonical encoding of a node. The field
// order is fixed (author, timestamp, id, payload hash, parents), strings
// are length-prefixed, numerics are fixed-width big-endian, and parents
// are count-prefixed in sorted order. Any change here breaks every
// stored hash, so the layout is frozen.
func canonicalHash(author string, timestamp time.Time, id string, payloadHash Hash, parents []string) Hash {
	buf := make([]byte, 0, 64+len(author)+len(id))
	buf = appendString(buf, author)
	buf = appendUint64(buf, uint64(timestamp.UTC().UnixNano()))
	buf = appendString(buf, id)
	buf = append(buf, payloadHash[:]...)
	buf = appendUint32(buf, uint32(len(parents)))
	for _, p := range parents {
		buf = appendString(buf, p)
	}
	return sum(buf)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
