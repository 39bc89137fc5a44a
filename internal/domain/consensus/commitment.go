package consensus

import (
	"encoding/binary"
	"math"
	"sort"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/dkg"
)

// EncodeScores produces the canonical byte encoding of a score matrix,
// the value a verifier commits to. Participants are encoded in
// ascending id order and dimensions in the given order, each score as
// a fixed-width big-endian centipoint, so independent implementations
// produce identical bytes for the same logical matrix.
//
// Scores outside the 0..100 range saturate in the encoding; the round
// rejects such matrices before any digest comparison.
func EncodeScores(dims []string, scores analytics.ScoreSet) []byte {
	participants := make([]string, 0, len(scores))
	for p := range scores {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(dims)))
	for _, d := range dims {
		buf = appendString(buf, d)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(participants)))
	for _, p := range participants {
		buf = appendString(buf, p)
		for _, d := range dims {
			buf = binary.BigEndian.AppendUint32(buf, centipoints(scores[p][d]))
		}
	}
	return buf
}

// CommitmentDigest binds a score encoding to a salt and the evidence
// data hash. Revealing the scores and salt lets anyone recompute the
// digest and check it against the stored commitment.
func CommitmentDigest(scoreBytes, salt []byte, dataHash dkg.Hash) dkg.Hash {
	buf := make([]byte, 0, len(scoreBytes)+len(salt)+len(dataHash))
	buf = append(buf, scoreBytes...)
	buf = append(buf, salt...)
	buf = append(buf, dataHash.Bytes()...)
	return dkg.HashPayload(buf)
}

func centipoints(score float64) uint32 {
	switch {
	case score <= 0 || math.IsNaN(score):
		return 0
	case score >= 100:
		return 10000
	}
	return uint32(math.Round(score * 100))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
