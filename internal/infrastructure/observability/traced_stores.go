package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/consensus"
)

// InstrumentedReportStore decorates a ReportStore with spans and store
// metrics. The wrapped store stays unaware of observability concerns.
type InstrumentedReportStore struct {
	inner   appports.ReportStore
	metrics *Collector
	tracer  trace.Tracer
}

// NewInstrumentedReportStore wraps a report store.
func NewInstrumentedReportStore(inner appports.ReportStore, metrics *Collector, tracer trace.Tracer) *InstrumentedReportStore {
	return &InstrumentedReportStore{inner: inner, metrics: metrics, tracer: tracer}
}

func (s *InstrumentedReportStore) SaveReport(ctx context.Context, report *audit.Report) error {
	ctx, span := s.tracer.Start(ctx, "ReportStore.SaveReport",
		trace.WithAttributes(attribute.String("audit.id", report.AuditID)))
	defer span.End()

	start := time.Now()
	err := s.inner.SaveReport(ctx, report)
	s.record(span, "save_report", "reports", start, err)
	return err
}

func (s *InstrumentedReportStore) GetReport(ctx context.Context, auditID string) (*audit.Report, error) {
	ctx, span := s.tracer.Start(ctx, "ReportStore.GetReport",
		trace.WithAttributes(attribute.String("audit.id", auditID)))
	defer span.End()

	start := time.Now()
	report, err := s.inner.GetReport(ctx, auditID)
	s.record(span, "get_report", "reports", start, err)
	return report, err
}

func (s *InstrumentedReportStore) ListReportsByThread(ctx context.Context, threadID string) ([]*audit.Report, error) {
	ctx, span := s.tracer.Start(ctx, "ReportStore.ListReportsByThread",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	start := time.Now()
	reports, err := s.inner.ListReportsByThread(ctx, threadID)
	s.record(span, "list_reports", "reports", start, err)
	return reports, err
}

func (s *InstrumentedReportStore) record(span trace.Span, operation, table string, start time.Time, err error) {
	s.metrics.ObserveDB(operation, table, statusOf(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// InstrumentedRoundStore decorates a RoundStore with spans and store
// metrics.
type InstrumentedRoundStore struct {
	inner   appports.RoundStore
	metrics *Collector
	tracer  trace.Tracer
}

// NewInstrumentedRoundStore wraps a round store.
func NewInstrumentedRoundStore(inner appports.RoundStore, metrics *Collector, tracer trace.Tracer) *InstrumentedRoundStore {
	return &InstrumentedRoundStore{inner: inner, metrics: metrics, tracer: tracer}
}

func (s *InstrumentedRoundStore) CreateRound(ctx context.Context, round *consensus.Round) error {
	ctx, span := s.tracer.Start(ctx, "RoundStore.CreateRound",
		trace.WithAttributes(attribute.String("round.id", round.ID())))
	defer span.End()

	start := time.Now()
	err := s.inner.CreateRound(ctx, round)
	s.record(span, "create_round", "rounds", start, err)
	return err
}

func (s *InstrumentedRoundStore) GetRound(ctx context.Context, roundID string) (*consensus.Round, error) {
	ctx, span := s.tracer.Start(ctx, "RoundStore.GetRound",
		trace.WithAttributes(attribute.String("round.id", roundID)))
	defer span.End()

	start := time.Now()
	round, err := s.inner.GetRound(ctx, roundID)
	s.record(span, "get_round", "rounds", start, err)
	return round, err
}

func (s *InstrumentedRoundStore) UpdateRound(ctx context.Context, roundID string, mutate func(*consensus.Round) error) error {
	ctx, span := s.tracer.Start(ctx, "RoundStore.UpdateRound",
		trace.WithAttributes(attribute.String("round.id", roundID)))
	defer span.End()

	start := time.Now()
	err := s.inner.UpdateRound(ctx, roundID, mutate)
	s.record(span, "update_round", "rounds", start, err)
	return err
}

func (s *InstrumentedRoundStore) record(span trace.Span, operation, table string, start time.Time, err error) {
	s.metrics.ObserveDB(operation, table, statusOf(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
