// Package ports declares the persistence contracts the application
// services depend on. Implementations live under
// internal/infrastructure; the services never see a concrete store.
package ports

import (
	"context"

	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/consensus"
)

// ReportStore persists finished audit reports.
type ReportStore interface {
	// SaveReport stores a report, replacing any previous version.
	SaveReport(ctx context.Context, report *audit.Report) error

	// GetReport retrieves a report by audit id.
	GetReport(ctx context.Context, auditID string) (*audit.Report, error)

	// ListReportsByThread returns every report recorded for a thread,
	// newest first.
	ListReportsByThread(ctx context.Context, threadID string) ([]*audit.Report, error)
}

// RoundStore persists consensus rounds across their commit, reveal and
// settlement phases.
type RoundStore interface {
	// CreateRound stores a newly opened round. Reusing a round id is
	// a conflict.
	CreateRound(ctx context.Context, round *consensus.Round) error

	// GetRound retrieves a round by id.
	GetRound(ctx context.Context, roundID string) (*consensus.Round, error)

	// UpdateRound loads the round, applies mutate and persists the
	// result, serialized against concurrent updates of the same
	// round. An error from mutate aborts the write and is returned
	// unchanged.
	UpdateRound(ctx context.Context, roundID string, mutate func(*consensus.Round) error) error
}
