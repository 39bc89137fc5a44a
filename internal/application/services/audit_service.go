// Package services contains the application services that orchestrate
// the engine's use cases: running audits over fetched threads and
// driving consensus rounds from commitment to settlement. Services own
// I/O sequencing and observability; all verification and scoring rules
// live in the domain packages they call into.
package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/evidence"
	"arbiter-backend/internal/domain/studio"
	"arbiter-backend/internal/errors"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/ports"
)

// eventSource identifies this engine as the emitter of domain events.
const eventSource = "arbiter.engine"

// RunAuditCommand requests one audit over a submitted evidence package.
type RunAuditCommand struct {
	// EvidenceCID addresses the sealed evidence package in blob storage.
	EvidenceCID string

	// ThreadID, when set, must match the thread the evidence binds to.
	ThreadID string

	// ExpectedRoot overrides the root claimed by the evidence package.
	ExpectedRoot string
}

// AuditService runs causal audits end to end: fetch the evidence and
// the thread, execute the pipeline for the owning studio, persist the
// report, and announce the result.
type AuditService struct {
	catalog  *studio.Catalog
	registry *analytics.Registry
	fetcher  ports.ThreadFetcher
	blobs    ports.BlobStore
	oracle   ports.SignatureOracle
	reports  appports.ReportStore
	events   ports.EventPublisher
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewAuditService creates an audit service. The signature oracle may be
// nil when no studio requires signature verification.
func NewAuditService(
	catalog *studio.Catalog,
	registry *analytics.Registry,
	fetcher ports.ThreadFetcher,
	blobs ports.BlobStore,
	oracle ports.SignatureOracle,
	reports appports.ReportStore,
	events ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *AuditService {
	return &AuditService{
		catalog:  catalog,
		registry: registry,
		fetcher:  fetcher,
		blobs:    blobs,
		oracle:   oracle,
		reports:  reports,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunAudit executes the full audit use case. Fetch failures abort
// before any report exists; once the pipeline runs, the report is
// persisted whatever its verdict.
func (s *AuditService) RunAudit(ctx context.Context, cmd RunAuditCommand) (*audit.Report, error) {
	start := time.Now()

	raw, err := s.blobs.Get(ctx, cmd.EvidenceCID)
	if err != nil {
		return nil, errors.Input("EVIDENCE_FETCH_FAILED", "evidence package could not be fetched").
			WithOperation("RunAudit").WithResource(cmd.EvidenceCID).WithCause(err).Build()
	}
	pkg, err := evidence.Decode(raw)
	if err != nil {
		return nil, err
	}
	if cmd.ThreadID != "" && cmd.ThreadID != pkg.ThreadID {
		return nil, errors.Input("THREAD_MISMATCH", "evidence package is bound to a different thread").
			WithOperation("RunAudit").WithResource(cmd.ThreadID).
			WithDetails(map[string]interface{}{"evidence_thread": pkg.ThreadID}).Build()
	}

	st, err := s.catalog.Get(pkg.StudioID)
	if err != nil {
		return nil, err
	}

	messages, err := s.fetcher.FetchThread(ctx, pkg.ThreadID)
	if err != nil {
		return nil, errors.Input("THREAD_FETCH_FAILED", "collaboration thread could not be fetched").
			WithOperation("RunAudit").WithResource(pkg.ThreadID).WithCause(err).Build()
	}

	pipeline, err := s.pipelineFor(st)
	if err != nil {
		return nil, err
	}
	report, err := pipeline.Run(audit.Input{
		ThreadID:     pkg.ThreadID,
		Messages:     messages,
		Evidence:     pkg,
		ExpectedRoot: cmd.ExpectedRoot,
	})
	if err != nil {
		return nil, err
	}

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save audit report: %w", err)
	}

	s.metrics.ObserveAudit(string(report.Verdict), stageViolations(report), report.NodeCount, time.Since(start))
	s.publishAuditCompleted(ctx, report)

	s.logger.Info("audit completed",
		zap.String("auditID", report.AuditID),
		zap.String("threadID", report.ThreadID),
		zap.String("studioID", report.StudioID),
		zap.String("verdict", string(report.Verdict)),
		zap.Int("nodes", report.NodeCount),
		zap.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// GetAudit returns a stored report by audit id.
func (s *AuditService) GetAudit(ctx context.Context, auditID string) (*audit.Report, error) {
	return s.reports.GetReport(ctx, auditID)
}

// ListThreadAudits returns every stored report for a thread.
func (s *AuditService) ListThreadAudits(ctx context.Context, threadID string) ([]*audit.Report, error) {
	return s.reports.ListReportsByThread(ctx, threadID)
}

// pipelineFor assembles the pipeline a studio's audits run through.
func (s *AuditService) pipelineFor(st *studio.Studio) (*audit.Pipeline, error) {
	opts := []analytics.Option{}
	if len(st.CustomDimensions) > 0 {
		opts = append(opts, analytics.WithCustomDimensions(s.registry, st.CustomDimensions...))
	}
	scorer, err := analytics.NewScorer(opts...)
	if err != nil {
		return nil, err
	}
	return audit.NewPipeline(scorer,
		audit.WithSignatureOracle(s.oracle),
		audit.WithRequiredSignatures(st.RequireSignature),
		audit.WithAttribution(st.AttributionMode),
	), nil
}

// publishAuditCompleted is best effort. The report is already durable;
// a publish failure is logged and surfaced through metrics only.
func (s *AuditService) publishAuditCompleted(ctx context.Context, report *audit.Report) {
	event := ports.Event{
		Type:       ports.EventAuditCompleted,
		Source:     eventSource,
		OccurredAt: time.Now().UTC(),
		Detail: map[string]interface{}{
			"audit_id":    report.AuditID,
			"thread_id":   report.ThreadID,
			"evidence_id": report.EvidenceID,
			"agent_id":    report.AgentID,
			"studio_id":   report.StudioID,
			"verdict":     string(report.Verdict),
			"violations":  len(report.Violations),
			"data_hash":   report.DataHash.String(),
		},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish audit completed event",
			zap.String("auditID", report.AuditID),
			zap.Error(err),
		)
	}
}

// stageViolations counts violations per stage for metric labels.
func stageViolations(report *audit.Report) map[string]int {
	counts := make(map[string]int)
	for _, v := range report.Violations {
		counts[string(v.Stage)]++
	}
	return counts
}
