package dkg

// ThreadRoot computes the Merkle root binding a thread's content and
// structure. Messages are sorted into canonical (timestamp, id) order,
// each is reduced to its canonical node hash, and the hashes are folded
// pairwise; an odd hash at any level is paired with itself. The empty
// thread has the zero root.
//
// The root is independent of the order messages arrive in and
// reproducible across processes, which is what makes it usable as a
// commitment on a ledger.
func ThreadRoot(messages []Message) Hash {
	if len(messages) == 0 {
		return ZeroHash
	}

	sorted := SortMessages(messages)
	level := make([]Hash, len(sorted))
	for i, m := range sorted {
		var parents []string
		if m.ParentID != "" {
			parents = []string{m.ParentID}
		}
		level[i] = canonicalHash(m.Author, m.Timestamp, m.ID, HashPayload([]byte(m.Content)), normalizeParents(parents))
	}

	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, sum(left[:], right[:]))
		}
		level = next
	}
	return level[0]
}

// VerifyThreadRoot recomputes the root and compares it to an expected
// hex digest, ignoring case. It returns the computed root alongside the
// verdict so callers can report both sides of a mismatch.
func VerifyThreadRoot(messages []Message, expected string) (Hash, bool) {
	computed := ThreadRoot(messages)
	return computed, EqualHex(computed.String(), expected)
}
