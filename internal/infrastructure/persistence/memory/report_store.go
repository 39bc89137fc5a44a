// Package memory provides in-process implementations of the engine's
// storage and lookup ports. They back local development and the service
// test suites; production wiring swaps in the DynamoDB stores.
package memory

import (
	"context"
	"sync"

	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/errors"
)

// ReportStore keeps audit reports in process memory.
type ReportStore struct {
	mu       sync.RWMutex
	reports  map[string]*audit.Report
	byThread map[string][]string
}

// NewReportStore creates an empty report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports:  make(map[string]*audit.Report),
		byThread: make(map[string][]string),
	}
}

func (s *ReportStore) SaveReport(_ context.Context, report *audit.Report) error {
	if report == nil || report.AuditID == "" {
		return errors.Input("REPORT_INVALID", "report must carry an audit id").
			WithOperation("SaveReport").Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[report.AuditID]; !exists {
		s.byThread[report.ThreadID] = append(s.byThread[report.ThreadID], report.AuditID)
	}
	s.reports[report.AuditID] = report
	return nil
}

func (s *ReportStore) GetReport(_ context.Context, auditID string) (*audit.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[auditID]
	if !ok {
		return nil, errors.NotFound("REPORT_NOT_FOUND", "no report recorded for audit").
			WithOperation("GetReport").WithResource(auditID).Build()
	}
	return report, nil
}

func (s *ReportStore) ListReportsByThread(_ context.Context, threadID string) ([]*audit.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byThread[threadID]
	out := make([]*audit.Report, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.reports[ids[i]])
	}
	return out, nil
}
