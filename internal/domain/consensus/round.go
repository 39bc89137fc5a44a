package consensus

import (
	"sort"
	"sync"
	"time"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// Phase is the lifecycle stage of a round.
type Phase string

const (
	PhaseCommit   Phase = "commit"
	PhaseReveal   Phase = "reveal"
	PhaseSettling Phase = "settling"
	PhaseSettled  Phase = "settled"
)

// Commitment is a verifier's sealed score digest, recorded during the
// commit window.
type Commitment struct {
	Verifier    string    `json:"verifier"`
	Digest      dkg.Hash  `json:"digest"`
	Stake       float64   `json:"stake"`
	CommittedAt time.Time `json:"committed_at"`
}

// Settlement is the final state of a round: the consensus outcome over
// the revealed submissions plus the committers who never revealed and
// are excluded and flagged.
type Settlement struct {
	RoundID      string    `json:"round_id"`
	Outcome      Outcome   `json:"outcome"`
	NonRevealers []string  `json:"non_revealers"`
	SettledAt    time.Time `json:"settled_at"`
}

// RoundParams carries everything needed to open a consensus round.
type RoundParams struct {
	ID           string
	StudioID     string
	AuditID      string
	DataHash     dkg.Hash
	Dimensions   []string
	Participants []string
	MADMultiple  float64
	CommitWindow time.Duration
	RevealWindow time.Duration
	OpenedAt     time.Time
}

// Round runs one commit-reveal consensus round over a fixed evidence
// snapshot. Commits are only accepted until the commit deadline,
// reveals only between the commit and reveal deadlines, so no verifier
// sees another's scores while still able to change its own. All
// methods are safe for concurrent use.
//
// Time is passed in by the caller rather than read from the wall
// clock, which keeps every transition replayable.
type Round struct {
	mu sync.Mutex

	id           string
	studioID     string
	auditID      string
	dataHash     dkg.Hash
	dims         []string
	participants []string
	madMultiple  float64

	openedAt       time.Time
	commitDeadline time.Time
	revealDeadline time.Time

	commitments map[string]Commitment
	reveals     map[string]Submission
	settlement  *Settlement
}

// NewRound opens a round.
func NewRound(params RoundParams) (*Round, error) {
	switch {
	case params.ID == "":
		return nil, errors.Input("ROUND_ID", "round id must not be empty").Build()
	case params.StudioID == "":
		return nil, errors.Input("ROUND_STUDIO", "round studio id must not be empty").Build()
	case params.DataHash.IsZero():
		return nil, errors.Input("ROUND_DATA_HASH", "round requires the evidence data hash").Build()
	case len(params.Dimensions) == 0:
		return nil, errors.Input("ROUND_DIMENSIONS", "round requires at least one dimension").Build()
	case len(params.Participants) == 0:
		return nil, errors.Input("ROUND_PARTICIPANTS", "round requires at least one participant").Build()
	case params.OpenedAt.IsZero():
		return nil, errors.Input("ROUND_OPEN_TIME", "round open time must be set").Build()
	case params.MADMultiple <= 0:
		return nil, errors.Config("BAD_MAD_MULTIPLE", "MAD multiple must be positive").Build()
	case params.CommitWindow <= 0 || params.RevealWindow <= 0:
		return nil, errors.Config("BAD_WINDOW", "commit and reveal windows must be positive").Build()
	}

	participants := append([]string(nil), params.Participants...)
	sort.Strings(participants)
	participants = dedupe(participants)

	opened := params.OpenedAt.UTC()
	return &Round{
		id:             params.ID,
		studioID:       params.StudioID,
		auditID:        params.AuditID,
		dataHash:       params.DataHash,
		dims:           append([]string(nil), params.Dimensions...),
		participants:   participants,
		madMultiple:    params.MADMultiple,
		openedAt:       opened,
		commitDeadline: opened.Add(params.CommitWindow),
		revealDeadline: opened.Add(params.CommitWindow + params.RevealWindow),
		commitments:    map[string]Commitment{},
		reveals:        map[string]Submission{},
	}, nil
}

// ReconstructRound rebuilds a round from persisted state.
func ReconstructRound(params RoundParams, commitments []Commitment, reveals []Submission, settlement *Settlement) (*Round, error) {
	r, err := NewRound(params)
	if err != nil {
		return nil, err
	}
	for _, c := range commitments {
		r.commitments[c.Verifier] = c
	}
	for _, s := range reveals {
		s.Scores = copyScores(s.Scores)
		r.reveals[s.Verifier] = s
	}
	r.settlement = settlement
	return r, nil
}

// Commit records a verifier's score digest. Committing the same digest
// again is a no-op; committing a different one is rejected.
func (r *Round) Commit(verifier string, stake float64, digest dkg.Hash, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.settlement != nil:
		return r.conflict("ROUND_SETTLED", "round is already settled")
	case verifier == "":
		return errors.Input("VERIFIER_ID", "verifier id must not be empty").WithResource(r.id).Build()
	case stake < 0:
		return errors.Input("INVALID_STAKE", "stake must not be negative").WithResource(r.id).Build()
	case digest.IsZero():
		return errors.Input("EMPTY_COMMITMENT", "commitment digest must not be zero").WithResource(r.id).Build()
	case now.After(r.commitDeadline):
		return r.conflict("COMMIT_CLOSED", "commit window has closed")
	}

	if existing, ok := r.commitments[verifier]; ok {
		if existing.Digest == digest {
			return nil
		}
		return r.conflict("ALREADY_COMMITTED", "verifier has already committed a different digest")
	}

	r.commitments[verifier] = Commitment{
		Verifier:    verifier,
		Digest:      digest,
		Stake:       stake,
		CommittedAt: now.UTC(),
	}
	return nil
}

// Reveal opens a verifier's commitment. The scores and salt must
// re-derive the committed digest exactly, and the score matrix must
// cover the round's participants and dimensions with values in the
// 0..100 range.
func (r *Round) Reveal(verifier string, scores analytics.ScoreSet, salt []byte, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.settlement != nil:
		return r.conflict("ROUND_SETTLED", "round is already settled")
	case !now.After(r.commitDeadline):
		return r.conflict("REVEAL_NOT_OPEN", "reveal window opens when the commit window closes")
	case now.After(r.revealDeadline):
		return r.conflict("REVEAL_CLOSED", "reveal window has closed")
	}

	commitment, ok := r.commitments[verifier]
	if !ok {
		return errors.NotFound("NO_COMMITMENT", "verifier has no commitment in this round").
			WithResource(r.id).Build()
	}
	if _, ok := r.reveals[verifier]; ok {
		return r.conflict("ALREADY_REVEALED", "verifier has already revealed")
	}
	if err := r.validateScores(scores); err != nil {
		return err
	}

	digest := CommitmentDigest(EncodeScores(r.dims, scores), salt, r.dataHash)
	if digest != commitment.Digest {
		return errors.Integrity("REVEAL_MISMATCH", "revealed scores and salt do not match the commitment").
			WithResource(r.id).Build()
	}

	r.reveals[verifier] = Submission{
		Verifier:   verifier,
		Stake:      commitment.Stake,
		Scores:     copyScores(scores),
		RevealedAt: now.UTC(),
	}
	return nil
}

// Settle closes the round and aggregates the revealed submissions.
// It is allowed once the reveal deadline has passed, or earlier when
// every committer has already revealed and nothing can change the
// input set. Committers who never revealed are excluded from the
// consensus and flagged in the settlement.
func (r *Round) Settle(now time.Time) (*Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settlement != nil {
		return nil, r.conflict("ROUND_SETTLED", "round is already settled")
	}
	allRevealed := len(r.commitments) > 0 && len(r.reveals) == len(r.commitments)
	if now.Before(r.revealDeadline) && !allRevealed {
		return nil, r.conflict("SETTLE_TOO_EARLY", "reveal window is still open")
	}

	subs := make([]Submission, 0, len(r.reveals))
	for _, s := range r.reveals {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Verifier < subs[j].Verifier })

	var nonRevealers []string
	for v := range r.commitments {
		if _, ok := r.reveals[v]; !ok {
			nonRevealers = append(nonRevealers, v)
		}
	}
	sort.Strings(nonRevealers)

	r.settlement = &Settlement{
		RoundID:      r.id,
		Outcome:      Aggregate(r.dims, r.participants, subs, r.madMultiple),
		NonRevealers: nonRevealers,
		SettledAt:    now.UTC(),
	}
	return r.settlement, nil
}

func (r *Round) validateScores(scores analytics.ScoreSet) error {
	if len(scores) != len(r.participants) {
		return r.shapeError("score matrix must cover every participant exactly once")
	}
	for _, p := range r.participants {
		row, ok := scores[p]
		if !ok {
			return r.shapeError("score matrix is missing participant " + p)
		}
		if len(row) != len(r.dims) {
			return r.shapeError("score vector must cover every dimension exactly once")
		}
		for _, d := range r.dims {
			v, ok := row[d]
			if !ok {
				return r.shapeError("score vector is missing dimension " + d)
			}
			if v < 0 || v > 100 {
				return errors.Input("SCORE_OUT_OF_RANGE", "scores must be between 0 and 100").
					WithDetails(map[string]interface{}{"participant": p, "dimension": d, "score": v}).
					WithResource(r.id).Build()
			}
		}
	}
	return nil
}

func (r *Round) shapeError(msg string) error {
	return errors.Input("SCORE_SHAPE", msg).WithResource(r.id).Build()
}

func (r *Round) conflict(code, msg string) error {
	return errors.Conflict(code, msg).WithResource(r.id).Build()
}

func (r *Round) ID() string                { return r.id }
func (r *Round) StudioID() string          { return r.studioID }
func (r *Round) AuditID() string           { return r.auditID }
func (r *Round) DataHash() dkg.Hash        { return r.dataHash }
func (r *Round) MADMultiple() float64      { return r.madMultiple }
func (r *Round) OpenedAt() time.Time       { return r.openedAt }
func (r *Round) CommitDeadline() time.Time { return r.commitDeadline }
func (r *Round) RevealDeadline() time.Time { return r.revealDeadline }

func (r *Round) Dimensions() []string {
	return append([]string(nil), r.dims...)
}

func (r *Round) Participants() []string {
	return append([]string(nil), r.participants...)
}

// Commitments lists the recorded commitments in verifier order.
func (r *Round) Commitments() []Commitment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Commitment, 0, len(r.commitments))
	for _, c := range r.commitments {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Verifier < out[j].Verifier })
	return out
}

// Reveals lists the revealed submissions in verifier order.
func (r *Round) Reveals() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, 0, len(r.reveals))
	for _, s := range r.reveals {
		s.Scores = copyScores(s.Scores)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Verifier < out[j].Verifier })
	return out
}

// Settled reports whether the round has been settled.
func (r *Round) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settlement != nil
}

// Settlement returns the settlement, or nil while the round is open.
func (r *Round) Settlement() *Settlement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settlement
}

// Phase reports the round's lifecycle stage at the given time.
func (r *Round) Phase(now time.Time) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.settlement != nil:
		return PhaseSettled
	case !now.After(r.commitDeadline):
		return PhaseCommit
	case !now.After(r.revealDeadline):
		return PhaseReveal
	default:
		return PhaseSettling
	}
}

func copyScores(scores analytics.ScoreSet) analytics.ScoreSet {
	out := make(analytics.ScoreSet, len(scores))
	for p, row := range scores {
		vector := make(analytics.Vector, len(row))
		for d, v := range row {
			vector[d] = v
		}
		out[p] = vector
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
