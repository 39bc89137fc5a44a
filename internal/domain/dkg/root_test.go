package dkg

import (
	"strings"
	"testing"
	"time"
)

func threadMessages() []Message {
	return []Message{
		{ID: "m1", Author: "alice", Content: "investigate latency spike", Timestamp: testBase},
		{ID: "m2", Author: "bob", Content: "traced to cache misses", Timestamp: testBase.Add(time.Minute), ParentID: "m1"},
		{ID: "m3", Author: "carol", Content: "fix deployed", Timestamp: testBase.Add(2 * time.Minute), ParentID: "m2"},
	}
}

func TestThreadRoot_OrderIndependent(t *testing.T) {
	msgs := threadMessages()
	shuffled := []Message{msgs[2], msgs[0], msgs[1]}

	if ThreadRoot(msgs) != ThreadRoot(shuffled) {
		t.Error("thread root must not depend on input order")
	}
}

func TestThreadRoot_Reproducible(t *testing.T) {
	first := ThreadRoot(threadMessages())
	second := ThreadRoot(threadMessages())
	if first != second {
		t.Error("thread root must be reproducible")
	}
	if first.IsZero() {
		t.Error("non-empty thread must not have the zero root")
	}
}

func TestThreadRoot_Empty(t *testing.T) {
	if got := ThreadRoot(nil); !got.IsZero() {
		t.Errorf("empty thread must have the zero root, got %s", got)
	}
}

func TestThreadRoot_SingleMessage(t *testing.T) {
	msgs := threadMessages()[:1]
	root := ThreadRoot(msgs)

	// A single leaf is its own root.
	want := canonicalHash(msgs[0].Author, msgs[0].Timestamp, msgs[0].ID,
		HashPayload([]byte(msgs[0].Content)), nil)
	if root != want {
		t.Error("single-message root must equal the leaf hash")
	}
}

func TestThreadRoot_OddCountPairsLastWithItself(t *testing.T) {
	msgs := threadMessages()
	root3 := ThreadRoot(msgs)

	// Recompute by hand: fold(h1h2, h3h3).
	leaves := make([]Hash, 3)
	sorted := SortMessages(msgs)
	for i, m := range sorted {
		var parents []string
		if m.ParentID != "" {
			parents = []string{m.ParentID}
		}
		leaves[i] = canonicalHash(m.Author, m.Timestamp, m.ID, HashPayload([]byte(m.Content)), parents)
	}
	left := sum(leaves[0].Bytes(), leaves[1].Bytes())
	right := sum(leaves[2].Bytes(), leaves[2].Bytes())
	want := sum(left.Bytes(), right.Bytes())

	if root3 != want {
		t.Error("odd leaf must be paired with itself")
	}
}

func TestThreadRoot_SensitiveToContent(t *testing.T) {
	msgs := threadMessages()
	tampered := threadMessages()
	tampered[1].Content = "traced to disk contention"

	if ThreadRoot(msgs) == ThreadRoot(tampered) {
		t.Error("content change must change the root")
	}
}

func TestVerifyThreadRoot_CaseInsensitive(t *testing.T) {
	msgs := threadMessages()
	root := ThreadRoot(msgs)

	if _, ok := VerifyThreadRoot(msgs, strings.ToUpper(root.String())); !ok {
		t.Error("verification must accept uppercase hex")
	}
	if _, ok := VerifyThreadRoot(msgs, root.String()); !ok {
		t.Error("verification must accept lowercase hex")
	}
	computed, ok := VerifyThreadRoot(msgs, ZeroHash.String())
	if ok {
		t.Error("wrong expected root must fail verification")
	}
	if computed != root {
		t.Error("verification must report the computed root either way")
	}
}

func TestSortMessages_TieBreaksOnID(t *testing.T) {
	ts := testBase
	msgs := []Message{
		{ID: "m2", Author: "bob", Content: "b", Timestamp: ts},
		{ID: "m1", Author: "alice", Content: "a", Timestamp: ts},
	}
	sorted := SortMessages(msgs)
	if sorted[0].ID != "m1" || sorted[1].ID != "m2" {
		t.Errorf("equal timestamps must order by id, got %v then %v", sorted[0].ID, sorted[1].ID)
	}
	if msgs[0].ID != "m2" {
		t.Error("input slice must not be mutated")
	}
}
