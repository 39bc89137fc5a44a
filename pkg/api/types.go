package api

import "time"

// RunAuditRequest is the expected body for POST /audits.
type RunAuditRequest struct {
	// EvidenceCID addresses the sealed evidence package in blob storage.
	EvidenceCID string `json:"evidence_cid" validate:"required"`

	// ThreadID, when set, must match the thread the evidence binds to.
	ThreadID string `json:"thread_id,omitempty"`

	// ExpectedRoot optionally pins the thread root the auditor expects.
	ExpectedRoot string `json:"expected_root,omitempty" validate:"omitempty,len=64,hexadecimal"`
}

// OpenRoundRequest is the expected body for POST /rounds.
type OpenRoundRequest struct {
	AuditID  string `json:"audit_id" validate:"required"`
	StudioID string `json:"studio_id,omitempty"`
}

// CommitRequest is the expected body for POST /rounds/{roundID}/commitments.
type CommitRequest struct {
	VerifierID string `json:"verifier_id" validate:"required"`

	// Digest is the hex commitment digest over the verifier's scores,
	// salt, and the round's data hash.
	Digest string `json:"digest" validate:"required,len=64,hexadecimal"`
}

// RevealRequest is the expected body for POST /rounds/{roundID}/reveals.
// Salt travels base64 encoded, as encoding/json renders byte slices.
type RevealRequest struct {
	VerifierID string                        `json:"verifier_id" validate:"required"`
	Scores     map[string]map[string]float64 `json:"scores" validate:"required"`
	Salt       []byte                        `json:"salt" validate:"required"`
}

// SettleRequest is the expected body for POST /rounds/{roundID}/settlement.
type SettleRequest struct {
	// Budget is the escrowed amount to divide between workers and
	// verifiers. Zero settles the round without paying anyone.
	Budget float64 `json:"budget" validate:"gte=0"`
}

// Commitment is the API view of one sealed score commitment.
type Commitment struct {
	Verifier    string    `json:"verifier"`
	Digest      string    `json:"digest"`
	Stake       float64   `json:"stake"`
	CommittedAt time.Time `json:"committed_at"`
}

// Reveal is the API view of one opened commitment.
type Reveal struct {
	Verifier   string                        `json:"verifier"`
	Stake      float64                       `json:"stake"`
	Scores     map[string]map[string]float64 `json:"scores"`
	RevealedAt time.Time                     `json:"revealed_at"`
}

// Round is the API view of a consensus round. Commitment digests are
// public by construction; scores appear only once revealed.
type Round struct {
	RoundID        string       `json:"round_id"`
	StudioID       string       `json:"studio_id"`
	AuditID        string       `json:"audit_id"`
	DataHash       string       `json:"data_hash"`
	Phase          string       `json:"phase"`
	Dimensions     []string     `json:"dimensions"`
	Participants   []string     `json:"participants"`
	OpenedAt       time.Time    `json:"opened_at"`
	CommitDeadline time.Time    `json:"commit_deadline"`
	RevealDeadline time.Time    `json:"reveal_deadline"`
	Commitments    []Commitment `json:"commitments"`
	Reveals        []Reveal     `json:"reveals"`
	Settled        bool         `json:"settled"`
}

// HealthResponse is the body served by the health endpoints.
type HealthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}
