package service

import (
	"context"
	"encoding/json"
	"time"

	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/pkg/tour"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	// MessageRewardsRefresh asks the client to refetch points and badges.
	MessageRewardsRefresh = "rewards_refresh"

	RefreshReasonInterval = "interval"
	RefreshReasonTourEnd  = "tour_ended"
)

// RefreshDelivery is implemented by the WebSocket hub. Refresh only targets
// connections held by this instance.
type RefreshDelivery interface {
	ConnectedUsers() []string
	SendLocal(userID string, msgType string, data interface{})
}

// RefreshService periodically nudges connected clients to refetch their
// rewards data. Users with a tour in progress are skipped so the highlighted
// element does not re-render under the tooltip; they are refreshed as soon
// as the tour ends.
type RefreshService struct {
	store      tour.Store
	subscriber message.Subscriber
	topic      string
	delivery   RefreshDelivery
	interval   time.Duration
	logger     logger.ILogger
	now        func() time.Time
}

func NewRefreshService(store tour.Store, sub message.Subscriber, topic string, delivery RefreshDelivery, interval time.Duration, log logger.ILogger) *RefreshService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RefreshService{
		store:      store,
		subscriber: sub,
		topic:      topic,
		delivery:   delivery,
		interval:   interval,
		logger:     log,
		now:        time.Now,
	}
}

// Start subscribes to flag changes and runs the refresh loop until ctx is done.
func (s *RefreshService) Start(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return err
	}

	go s.loop(ctx, messages)

	s.logger.Info("RefreshService", "Refresh loop started", map[string]interface{}{"interval": s.interval.String()})
	return nil
}

func (s *RefreshService) loop(ctx context.Context, messages <-chan *message.Message) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handleFlagMessage(ctx, msg)
		}
	}
}

// RefreshAll pushes a refresh to every connected user whose tour flag is
// clear and returns how many were refreshed and skipped.
func (s *RefreshService) RefreshAll(ctx context.Context) (sent, skipped int) {
	for _, userID := range s.delivery.ConnectedUsers() {
		if s.paused(ctx, userID) {
			skipped++
			continue
		}
		s.send(userID, RefreshReasonInterval)
		sent++
	}
	if skipped > 0 {
		s.logger.Debug("RefreshService", "Refresh skipped during tours", map[string]interface{}{
			"sent":    sent,
			"skipped": skipped,
		})
	}
	return sent, skipped
}

// paused reads the persisted flag. A store failure does not hold refresh back.
func (s *RefreshService) paused(ctx context.Context, userID string) bool {
	set, err := tour.FlagSet(ctx, s.store, tour.FlagKey(userID))
	if err != nil {
		s.logger.Warn("RefreshService", "Failed to read tour flag", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		return false
	}
	return set
}

func (s *RefreshService) handleFlagMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var change tour.FlagChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		s.logger.Error("RefreshService", "Malformed flag change", map[string]interface{}{"error": err.Error()})
		return
	}
	if change.InProgress || change.UserID == "" {
		return
	}
	// Another tab may have started a new tour in between.
	if s.paused(ctx, change.UserID) {
		return
	}
	s.send(change.UserID, RefreshReasonTourEnd)
}

func (s *RefreshService) send(userID, reason string) {
	s.delivery.SendLocal(userID, MessageRewardsRefresh, dto.RefreshMessage{
		Reason: reason,
		At:     s.now().UTC(),
	})
}
