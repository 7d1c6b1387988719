package worker

import (
	"context"
	"encoding/json"
	"time"

	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
)

type EventPublisher struct {
	pub TaskPublisher
	now func() time.Time
}

func NewEventPublisher(pub TaskPublisher) *EventPublisher {
	return &EventPublisher{pub: pub, now: time.Now}
}

func (p *EventPublisher) PublishResult(ctx context.Context, ev IngestResult) error {
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = p.now().UTC()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.pub.Publish(config.TopicIngestResult, body)
}

func (p *EventPublisher) RequestIndex(ctx context.Context, sessionID string) error {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return err
	}
	body, err := json.Marshal(IndexRequest{
		SessionID:     sessionID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	return p.pub.Publish(config.TopicIngestIndex, body)
}
