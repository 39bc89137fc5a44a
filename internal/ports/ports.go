// Package ports declares the narrow contracts the engine consumes from
// the outside world. Implementations live under infrastructure; domain
// and application code depend only on these interfaces.
package ports

import (
	"context"
	"time"

	"arbiter-backend/internal/domain/dkg"
)

// ThreadFetcher retrieves a collaboration thread from the message
// transport. Failures surface as input errors to the audit.
type ThreadFetcher interface {
	FetchThread(ctx context.Context, threadID string) ([]dkg.Message, error)
}

// BlobStore is content-addressed storage for evidence payloads.
type BlobStore interface {
	Get(ctx context.Context, cid string) ([]byte, error)
	Put(ctx context.Context, data []byte) (string, error)
}

// SignatureOracle decides whether a message's signature is valid. The
// engine treats it as opaque; key handling is entirely behind it.
type SignatureOracle interface {
	Verify(msg dkg.Message) bool
}

// StakeRegistry resolves the stake backing a verifier's submissions.
type StakeRegistry interface {
	Stake(ctx context.Context, verifierID string) (float64, error)
}

// EventPublisher emits domain events to the outside world.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Event is one domain event envelope.
type Event struct {
	Type       string                 `json:"type"`
	Source     string                 `json:"source"`
	OccurredAt time.Time              `json:"occurred_at"`
	Detail     map[string]interface{} `json:"detail"`
}

// Event types published by the engine.
const (
	EventAuditCompleted  = "arbiter.audit.completed"
	EventRoundSettled    = "arbiter.round.settled"
	EventVerifierFlagged = "arbiter.verifier.flagged"
)
