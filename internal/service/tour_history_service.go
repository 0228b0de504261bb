package service

import (
	"context"
	"fmt"
	"time"

	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/mapper"
	"loyalty-rewards-be/internal/model"
	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/internal/repository/contract"
	"loyalty-rewards-be/pkg/events"
	pktNats "loyalty-rewards-be/pkg/nats"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const historyDurable = "tour-history-worker"

type ITourHistoryService interface {
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]dto.TourEventResponse, int64, error)
}

// TourHistoryService records tour lifecycle events from the bus so product
// can see which tours get finished and which get abandoned.
type TourHistoryService struct {
	repo       contract.TourEventRepository
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewTourHistoryService(repo contract.TourEventRepository, sub *pktNats.Subscriber, log logger.ILogger) *TourHistoryService {
	return &TourHistoryService{
		repo:       repo,
		subscriber: sub,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *TourHistoryService) Start() {
	if s.subscriber == nil || s.repo == nil {
		s.logger.Warn("TourHistoryService", "History disabled, subscriber or database missing", nil)
		return
	}
	err := s.subscriber.Subscribe(pktNats.SubjectPrefix+">", historyDurable, s.handleEvent)
	if err != nil {
		s.logger.Error("TourHistoryService", "Failed to start history subscriber", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("TourHistoryService", "History service started", nil)
}

func (s *TourHistoryService) handleEvent(ctx context.Context, event events.Event) error {
	if !events.IsTourEvent(event.EventType()) {
		return nil
	}

	payload := event.Payload()
	userID, _ := payload["user_id"].(string)
	if userID == "" {
		s.logger.Warn("TourHistoryService", "Tour event without user_id", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	occurredAt := event.Timestamp()
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	record := &model.TourEvent{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       event.EventType(),
		StepIDs:    datatypes.JSONSlice[string](stringSlice(payload["step_ids"])),
		OccurredAt: occurredAt.UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to store tour event: %w", err)
	}
	return nil
}

func (s *TourHistoryService) GetHistory(ctx context.Context, userID string, limit, offset int) ([]dto.TourEventResponse, int64, error) {
	if s.repo == nil {
		return []dto.TourEventResponse{}, 0, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.repo.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	res := make([]dto.TourEventResponse, 0, len(records))
	for _, r := range records {
		res = append(res, mapper.TourEventToResponse(r))
	}
	return res, total, nil
}

// stringSlice converts a decoded JSON array into strings, skipping anything else.
func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
