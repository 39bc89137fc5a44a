// Package messaging holds event publisher implementations that do not
// target a broker. The EventBridge publisher lives in the eventbridge
// subpackage.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"arbiter-backend/internal/ports"
)

// LogPublisher records events in the service log and drops them. It
// stands in for a broker in development and in tests.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// Publish implements ports.EventPublisher.
func (p *LogPublisher) Publish(_ context.Context, events ...ports.Event) error {
	for _, ev := range events {
		p.logger.Debug("event dropped, no broker configured",
			zap.String("type", ev.Type),
			zap.String("source", ev.Source))
	}
	return nil
}
