package dkg

import (
	"sort"
	"time"
)

// Message is one entry of a collaboration thread as delivered by the
// transport. It is the wire-facing shape; NodeFromMessage lifts it into
// the canonical graph model.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  string    `json:"parent_id,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
}

// NodeFromMessage converts a thread message into a canonical node. The
// payload hash is the digest of the message content; the parent list is
// the single optional reply parent.
func NodeFromMessage(m Message) (*Node, error) {
	var parents []string
	if m.ParentID != "" {
		parents = []string{m.ParentID}
	}
	return NewNode(m.ID, m.Author, m.Timestamp, []byte(m.Content), parents)
}

// SortMessages orders messages by (timestamp, id) ascending, the
// canonical thread order. Ties on timestamp break on id, so every
// permutation of the same messages sorts identically. The input slice
// is not modified.
func SortMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
