package service

import (
	"context"
	"encoding/json"
	"time"

	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/pkg/events"
	"loyalty-rewards-be/pkg/tour"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// TourFlagTopic carries every tour-in-progress flag change inside the process.
const TourFlagTopic = "tour.flag"

// EventPublisher is satisfied by *pkg/nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TourEventPublisher fans tour flag changes out to the in-process bus
// (refresh pausing) and to NATS (history).
type TourEventPublisher struct {
	pubSub  message.Publisher
	topic   string
	nats    EventPublisher
	logger  logger.ILogger
	timeout time.Duration
}

func NewTourEventPublisher(pubSub message.Publisher, topic string, nats EventPublisher, log logger.ILogger) *TourEventPublisher {
	return &TourEventPublisher{
		pubSub:  pubSub,
		topic:   topic,
		nats:    nats,
		logger:  log,
		timeout: 3 * time.Second,
	}
}

// TourFlagChanged never fails the tour operation; delivery errors are logged.
func (p *TourEventPublisher) TourFlagChanged(ctx context.Context, change tour.FlagChange) {
	if p.pubSub != nil {
		payload, err := json.Marshal(change)
		if err != nil {
			p.logger.Error("TOUR_EVENTS", "Failed to marshal flag change", map[string]interface{}{"error": err.Error()})
			return
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := p.pubSub.Publish(p.topic, msg); err != nil {
			p.logger.Error("TOUR_EVENTS", "Failed to publish flag change", map[string]interface{}{
				"error":   err.Error(),
				"user_id": change.UserID,
			})
		}
	}

	if p.nats == nil {
		return
	}

	evt := events.BaseEvent{
		Type: string(change.Reason),
		Data: map[string]interface{}{
			"user_id":     change.UserID,
			"step_ids":    change.StepIDs,
			"in_progress": change.InProgress,
		},
		OccurredAt: change.OccurredAt,
	}

	// The request context may already be done when a deferred reveal ends the tour.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.nats.Publish(pubCtx, evt); err != nil {
		p.logger.Error("TOUR_EVENTS", "Failed to publish "+evt.Type+" event", map[string]interface{}{
			"error":   err.Error(),
			"user_id": change.UserID,
		})
	}
}
