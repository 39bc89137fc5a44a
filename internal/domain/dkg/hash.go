// Package dkg implements the causal knowledge graph at the heart of the
// arbiter engine: canonical node hashing, append-only construction with
// freeze semantics, verifiable logical clocks and the thread Merkle root.
//
// Everything in this package is deterministic. The same logical inputs
// produce byte-identical hashes on every platform, which is what lets
// independent verifiers agree on what they audited.
package dkg

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the digest width in bytes.
const HashSize = sha256.Size

// Hash is a 256-bit digest value.
type Hash [HashSize]byte

// ZeroHash is the all-zero digest. It is the clock seed for root nodes
// and the thread root of an empty thread.
var ZeroHash Hash

// sum computes the digest of the concatenation of parts.
func sum(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashPayload digests raw payload bytes into the canonical payload hash.
func HashPayload(payload []byte) Hash {
	return sum(payload)
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the digest bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Compare orders hashes as big-endian unsigned integers. It returns -1,
// 0 or 1 in the manner of bytes.Compare.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler as lowercase hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting hex in
// either case.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a hex string into a Hash. Comparison of hex forms is
// case-insensitive, so both cases decode.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return ZeroHash, fmt.Errorf("parse hash: %w", err)
	}
	if len(raw) != HashSize {
		return ZeroHash, fmt.Errorf("parse hash: expected %d bytes, got %d", HashSize, len(raw))
	}
	var out Hash
	copy(out[:], raw)
	return out, nil
}

// EqualHex reports whether two hex-encoded digests denote the same
// value, ignoring case and any 0x prefix. Malformed input is unequal to
// everything.
func EqualHex(a, b string) bool {
	ha, err := ParseHash(a)
	if err != nil {
		return false
	}
	hb, err := ParseHash(b)
	if err != nil {
		return false
	}
	return ha == hb
}

// maxHash returns the numerically larger of two hashes.
func maxHash(a, b Hash) Hash {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}
