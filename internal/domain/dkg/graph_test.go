package dkg

import (
	"testing"
	"time"

	"arbiter-backend/internal/errors"
)

// chainGraph builds the three-author chain a1 <- b1 <- c1.
func chainGraph(t *testing.T) *Graph {
	t.Helper()
	b := NewBuilder()
	for _, n := range []*Node{
		mustNode(t, "a1", "alice", testBase, "task"),
		mustNode(t, "b1", "bob", testBase.Add(time.Minute), "analysis", "a1"),
		mustNode(t, "c1", "carol", testBase.Add(2*time.Minute), "summary", "b1"),
	} {
		if err := b.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID(), err)
		}
	}
	return b.Build()
}

func TestBuilder_AddNode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		add      func(b *Builder) error
		wantCode string
	}{
		{
			name: "missing parent",
			add: func(b *Builder) error {
				return b.AddNode(mustNode(t, "b1", "bob", testBase.Add(time.Minute), "reply", "ghost"))
			},
			wantCode: errors.CodeMissingParent,
		},
		{
			name: "non monotonic time",
			add: func(b *Builder) error {
				if err := b.AddNode(mustNode(t, "a1", "alice", testBase, "task")); err != nil {
					return err
				}
				return b.AddNode(mustNode(t, "b1", "bob", testBase.Add(-time.Second), "early reply", "a1"))
			},
			wantCode: errors.CodeNonMonotonicTime,
		},
		{
			name: "conflicting node",
			add: func(b *Builder) error {
				if err := b.AddNode(mustNode(t, "a1", "alice", testBase, "task")); err != nil {
					return err
				}
				return b.AddNode(mustNode(t, "a1", "alice", testBase, "different content"))
			},
			wantCode: errors.CodeConflictingNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.add(NewBuilder())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.IsStructural(err) {
				t.Errorf("expected structural error, got %v", err)
			}
			if got := errors.CodeOf(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestBuilder_IdenticalReAddIsIdempotent(t *testing.T) {
	b := NewBuilder()
	n := mustNode(t, "a1", "alice", testBase, "task")
	if err := b.AddNode(n); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := b.AddNode(mustNode(t, "a1", "alice", testBase, "task")); err != nil {
		t.Fatalf("identical re-add must be a no-op, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 node after idempotent re-add, got %d", b.Len())
	}
}

func TestBuilder_EqualTimestampsAllowed(t *testing.T) {
	b := NewBuilder()
	if err := b.AddNode(mustNode(t, "a1", "alice", testBase, "task")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := b.AddNode(mustNode(t, "b1", "bob", testBase, "instant reply", "a1")); err != nil {
		t.Errorf("equal child and parent timestamps must be accepted, got %v", err)
	}
}

func TestGraph_Accessors(t *testing.T) {
	g := chainGraph(t)

	if g.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", g.Len())
	}
	if roots := g.Roots(); len(roots) != 1 || roots[0] != "a1" {
		t.Errorf("expected roots [a1], got %v", roots)
	}
	if terms := g.Terminals(); len(terms) != 1 || terms[0] != "c1" {
		t.Errorf("expected terminals [c1], got %v", terms)
	}
	if kids := g.Children("a1"); len(kids) != 1 || kids[0] != "b1" {
		t.Errorf("expected children(a1) = [b1], got %v", kids)
	}
	if parents := g.Parents("c1"); len(parents) != 1 || parents[0] != "b1" {
		t.Errorf("expected parents(c1) = [b1], got %v", parents)
	}
	if authors := g.Authors(); len(authors) != 3 || authors[0] != "alice" {
		t.Errorf("expected sorted author set, got %v", authors)
	}
	if own := g.NodesByAuthor("bob"); len(own) != 1 || own[0].ID() != "b1" {
		t.Errorf("expected bob to own [b1], got %d nodes", len(own))
	}
	if _, ok := g.Node("ghost"); ok {
		t.Error("lookup of absent id must report false")
	}
}

func TestGraph_Depths(t *testing.T) {
	// Diamond: a1 at depth 1, b1 and b2 at 2, c1 at 3 through its
	// deepest parent.
	b := NewBuilder()
	for _, n := range []*Node{
		mustNode(t, "a1", "alice", testBase, "root"),
		mustNode(t, "b1", "bob", testBase.Add(time.Minute), "left", "a1"),
		mustNode(t, "b2", "bob", testBase.Add(time.Minute), "right", "a1"),
		mustNode(t, "c1", "carol", testBase.Add(2*time.Minute), "join", "b1", "b2"),
	} {
		if err := b.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID(), err)
		}
	}
	depths := b.Build().Depths()

	want := map[string]int{"a1": 1, "b1": 2, "b2": 2, "c1": 3}
	for id, d := range want {
		if depths[id] != d {
			t.Errorf("depth(%s) = %d, want %d", id, depths[id], d)
		}
	}
}

func TestReconstruct_OrderIndependent(t *testing.T) {
	nodes := []*Node{
		mustNode(t, "c1", "carol", testBase.Add(2*time.Minute), "summary", "b1"),
		mustNode(t, "a1", "alice", testBase, "task"),
		mustNode(t, "b1", "bob", testBase.Add(time.Minute), "analysis", "a1"),
	}

	g, err := Reconstruct(nodes)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if got := g.Order(); got[0] != "a1" || got[1] != "b1" || got[2] != "c1" {
		t.Errorf("expected topological order [a1 b1 c1], got %v", got)
	}
}

func TestReconstruct_RejectsCycle(t *testing.T) {
	// Two nodes at the same timestamp naming each other as parent pass
	// the monotonicity check but must still fail as a cycle.
	x := mustNode(t, "x", "alice", testBase, "first", "y")
	y := mustNode(t, "y", "bob", testBase, "second", "x")

	_, err := Reconstruct([]*Node{x, y})
	if err == nil {
		t.Fatal("expected cycle rejection, got nil")
	}
	if got := errors.CodeOf(err); got != errors.CodeCycleDetected {
		t.Errorf("expected code %s, got %s", errors.CodeCycleDetected, got)
	}
}

func TestReconstruct_MissingParent(t *testing.T) {
	orphan := mustNode(t, "b1", "bob", testBase, "reply", "ghost")
	_, err := Reconstruct([]*Node{orphan})
	if got := errors.CodeOf(err); got != errors.CodeMissingParent {
		t.Errorf("expected code %s, got %v", errors.CodeMissingParent, err)
	}
}

func TestEmptyGraph(t *testing.T) {
	g := NewBuilder().Build()
	if g.Len() != 0 {
		t.Errorf("expected empty graph, got %d nodes", g.Len())
	}
	if len(g.Roots()) != 0 || len(g.Terminals()) != 0 || len(g.Authors()) != 0 {
		t.Error("empty graph must have no roots, terminals or authors")
	}
	if len(g.Depths()) != 0 {
		t.Error("empty graph must have no depths")
	}
}
