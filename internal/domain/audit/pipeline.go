package audit

import (
	"time"

	"github.com/google/uuid"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/attribution"
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/domain/evidence"
	"arbiter-backend/internal/errors"
	"arbiter-backend/internal/ports"
)

// Input is everything a single audit consumes. The caller is
// responsible for fetching; a fetch failure never reaches Run, it
// aborts upstream with no partial report.
type Input struct {
	ThreadID string
	Messages []dkg.Message
	Evidence *evidence.Package

	// ExpectedRoot overrides the root claimed inside the evidence
	// package. Leave empty to verify against the evidence claim.
	ExpectedRoot string
}

// Pipeline executes audits. It is stateless and safe for concurrent
// use; every Run works on its own snapshot.
type Pipeline struct {
	scorer            *analytics.Scorer
	oracle            ports.SignatureOracle
	method            attribution.Method
	requireSignatures bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSignatureOracle installs the signature verifier. Without one,
// signature presence is still enforced when required but content is
// trusted.
func WithSignatureOracle(oracle ports.SignatureOracle) PipelineOption {
	return func(p *Pipeline) { p.oracle = oracle }
}

// WithRequiredSignatures makes unsigned messages a violation.
func WithRequiredSignatures(required bool) PipelineOption {
	return func(p *Pipeline) { p.requireSignatures = required }
}

// WithAttribution selects how contribution weights are derived from
// the verified graph.
func WithAttribution(method attribution.Method) PipelineOption {
	return func(p *Pipeline) { p.method = method }
}

// NewPipeline builds an audit pipeline around a scorer.
func NewPipeline(scorer *analytics.Scorer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{scorer: scorer, method: attribution.MethodBetweenness}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the audit stages in order: root check, causality check,
// signature check, scoring. Findings accumulate as violations; only
// unusable input aborts. The returned report lists every violation and
// the per-participant scores of whatever graph could be verified.
func (p *Pipeline) Run(input Input) (*Report, error) {
	if input.Evidence == nil {
		return nil, errors.Input("EVIDENCE_MISSING", "audit requires an evidence package").
			WithOperation("Run").WithResource(input.ThreadID).Build()
	}
	dataHash, err := input.Evidence.DataHash()
	if err != nil {
		return nil, err
	}

	report := &Report{
		AuditID:    uuid.New().String(),
		ThreadID:   input.ThreadID,
		EvidenceID: input.Evidence.ID,
		AgentID:    input.Evidence.AgentID,
		StudioID:   input.Evidence.StudioID,
		Dimensions: p.scorer.Dimensions(),
		DataHash:   dataHash,
		AuditedAt:  time.Now().UTC(),
	}
	report.record(StageFetched, true)

	p.checkRoot(input, report)
	graph := p.checkCausality(input, report)
	p.checkSignatures(input, report)
	if err := p.score(graph, report); err != nil {
		return nil, err
	}

	report.Verdict = VerdictPassed
	if len(report.Violations) > 0 {
		report.Verdict = VerdictFailed
	}
	return report, nil
}

func (p *Pipeline) checkRoot(input Input, report *Report) {
	expected := input.ExpectedRoot
	if expected == "" {
		expected = input.Evidence.ThreadRoot
	}
	report.ExpectedRoot = expected

	computed, ok := dkg.VerifyThreadRoot(input.Messages, expected)
	report.ComputedRoot = computed
	report.RootMatches = ok
	if !ok {
		report.violate(StageRootChecked, "ROOT_MISMATCH", "computed thread root differs from the committed root", "")
	}
	if !input.Evidence.VerifyIntegrity() {
		report.violate(StageRootChecked, "EVIDENCE_TAMPERED", "evidence content hash does not verify", "")
	}
	report.record(StageRootChecked, ok && input.Evidence.VerifyIntegrity())
}

// checkCausality rebuilds the causal graph message by message in
// canonical order. Structural rejections become violations and the
// offending node is skipped, so one bad message cannot mask findings in
// the rest of the thread.
func (p *Pipeline) checkCausality(input Input, report *Report) *dkg.Graph {
	builder := dkg.NewBuilder()
	passed := true
	for _, m := range dkg.SortMessages(input.Messages) {
		if err := builder.AddMessage(m); err != nil {
			passed = false
			report.violate(StageCausalityChecked, violationCode(err), err.Error(), m.ID)
		}
	}
	graph := builder.Build()
	report.NodeCount = graph.Len()
	report.record(StageCausalityChecked, passed)
	return graph
}

func (p *Pipeline) checkSignatures(input Input, report *Report) {
	passed := true
	for _, m := range input.Messages {
		if len(m.Signature) == 0 {
			if p.requireSignatures {
				passed = false
				report.violate(StageSignaturesChecked, "SIGNATURE_MISSING", "message carries no signature", m.ID)
			}
			continue
		}
		if p.oracle != nil && !p.oracle.Verify(m) {
			passed = false
			report.violate(StageSignaturesChecked, "SIGNATURE_INVALID", "message signature failed verification", m.ID)
		}
	}
	report.record(StageSignaturesChecked, passed)
}

func (p *Pipeline) score(graph *dkg.Graph, report *Report) error {
	weights, err := attribution.Weights(graph, p.method)
	if err != nil {
		return err
	}
	report.Scores = p.scorer.Score(graph)
	report.Contribution = weights
	report.record(StageScored, true)
	return nil
}

func (r *Report) record(stage Stage, passed bool) {
	r.Stages = append(r.Stages, StageResult{Stage: stage, Passed: passed})
}

func (r *Report) violate(stage Stage, code, message, nodeID string) {
	r.Violations = append(r.Violations, Violation{
		Stage:   stage,
		Code:    code,
		Message: message,
		NodeID:  nodeID,
	})
}

func violationCode(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	return "CAUSALITY_VIOLATION"
}
