// Package eventbridge publishes engine events to an AWS EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	appErrors "arbiter-backend/internal/errors"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/ports"
)

const (
	// EventBridge caps PutEvents at 10 entries per call.
	maxBatchSize = 10
	maxAttempts  = 3
	retryBase    = 100 * time.Millisecond
)

// PutEventsAPI is the slice of the EventBridge client the publisher needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends engine events to EventBridge in PutEvents-sized
// batches. Entries the bus rejects are retried with backoff before the
// call is failed.
type Publisher struct {
	client  PutEventsAPI
	bus     string
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewPublisher creates an EventBridge-backed event publisher. An empty
// bus name targets the account's default bus.
func NewPublisher(client PutEventsAPI, bus string, metrics *observability.Collector, logger *zap.Logger) *Publisher {
	if bus == "" {
		bus = "default"
	}
	return &Publisher{
		client:  client,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Publish implements ports.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, events ...ports.Event) error {
	if len(events) == 0 {
		return nil
	}
	for start := 0; start < len(events); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, batch []ports.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, ev := range batch {
		entry, err := p.entryFor(ev)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	pending := entries
	pendingEvents := batch
	for attempt := 1; ; attempt++ {
		out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: pending})
		if err != nil {
			p.countAll(pendingEvents, "error")
			return appErrors.External("EVENT_PUBLISH_FAILED", "eventbridge put events failed").
				WithOperation("Publish").
				WithCause(err).
				WithRetryable(true).
				Build()
		}

		// PutEvents reports partial failures entry by entry; the
		// result slice is index-aligned with the request.
		var failed []types.PutEventsRequestEntry
		var failedEvents []ports.Event
		for i, res := range out.Entries {
			if res.ErrorCode == nil {
				p.metrics.ObserveEvent(pendingEvents[i].Type, "success")
				continue
			}
			failed = append(failed, pending[i])
			failedEvents = append(failedEvents, pendingEvents[i])
		}
		if len(failed) == 0 {
			return nil
		}
		if attempt >= maxAttempts {
			p.countAll(failedEvents, "error")
			return appErrors.External("EVENT_PUBLISH_FAILED",
				fmt.Sprintf("%d events rejected after %d attempts", len(failed), attempt)).
				WithOperation("Publish").
				WithRetryable(true).
				Build()
		}

		p.logger.Warn("eventbridge rejected entries, retrying",
			zap.Int("failed", len(failed)),
			zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			p.countAll(failedEvents, "error")
			return ctx.Err()
		case <-time.After(retryBase << (attempt - 1)):
		}
		pending = failed
		pendingEvents = failedEvents
	}
}

func (p *Publisher) entryFor(ev ports.Event) (types.PutEventsRequestEntry, error) {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return types.PutEventsRequestEntry{}, appErrors.Internal("EVENT_ENCODING", "marshal event detail").
			WithCause(err).
			Build()
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return types.PutEventsRequestEntry{
		EventBusName: aws.String(p.bus),
		Source:       aws.String(ev.Source),
		DetailType:   aws.String(ev.Type),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(occurred),
	}, nil
}

func (p *Publisher) countAll(events []ports.Event, status string) {
	for _, ev := range events {
		p.metrics.ObserveEvent(ev.Type, status)
	}
}
