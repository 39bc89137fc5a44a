// Package audit runs the causal audit: a fixed sequence of checks over
// a fetched thread and its evidence package, producing a report that
// lists every violation found rather than stopping at the first.
package audit

import (
	"time"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/dkg"
)

// Stage names the steps of the audit state machine, in execution order.
type Stage string

const (
	StageFetched           Stage = "fetched"
	StageRootChecked       Stage = "root_checked"
	StageCausalityChecked  Stage = "causality_checked"
	StageSignaturesChecked Stage = "signatures_checked"
	StageScored            Stage = "scored"
)

// Verdict is the overall audit outcome.
type Verdict string

const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

// Violation is one recorded integrity finding. A violation never aborts
// the audit; it is collected and the remaining stages still run.
type Violation struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage  Stage `json:"stage"`
	Passed bool  `json:"passed"`
}

// Report is the complete audit artifact. It carries everything a
// verifier commits to: what was checked, what failed, and the scores
// derived from the verified graph.
type Report struct {
	AuditID      string             `json:"audit_id"`
	ThreadID     string             `json:"thread_id"`
	EvidenceID   string             `json:"evidence_id"`
	AgentID      string             `json:"agent_id"`
	StudioID     string             `json:"studio_id"`
	ComputedRoot dkg.Hash           `json:"computed_root"`
	ExpectedRoot string             `json:"expected_root"`
	RootMatches  bool               `json:"root_matches"`
	Stages       []StageResult      `json:"stages"`
	Violations   []Violation        `json:"violations"`
	Scores       analytics.ScoreSet `json:"scores"`
	Dimensions   []string           `json:"dimensions"`
	Contribution map[string]float64 `json:"contribution"`
	DataHash     dkg.Hash           `json:"data_hash"`
	NodeCount    int                `json:"node_count"`
	Verdict      Verdict            `json:"verdict"`
	AuditedAt    time.Time          `json:"audited_at"`
}

// StageViolations filters the report's violations to one stage.
func (r *Report) StageViolations(stage Stage) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Stage == stage {
			out = append(out, v)
		}
	}
	return out
}

// Passed reports whether the audit finished without violations.
func (r *Report) Passed() bool {
	return r.Verdict == VerdictPassed
}
