package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTourHistory_RecordsTourEvents(t *testing.T) {
	ctx := context.Background()
	repo := &fakeTourEventRepo{}
	svc := NewTourHistoryService(repo, nil, logger.NewNopLogger())

	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	err := svc.handleEvent(ctx, events.BaseEvent{
		Type: events.TypeTourAbandoned,
		Data: map[string]interface{}{
			"user_id":  "u-1",
			"step_ids": []interface{}{"scanner-button", 42, "badges-tab"},
		},
		OccurredAt: at,
	})
	require.NoError(t, err)

	history, total, err := svc.GetHistory(ctx, "u-1", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, history, 1)
	assert.Equal(t, events.TypeTourAbandoned, history[0].Type)
	assert.Equal(t, []string{"scanner-button", "badges-tab"}, history[0].StepIds)
	assert.Equal(t, at, history[0].OccurredAt)
}

func TestTourHistory_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	repo := &fakeTourEventRepo{}
	svc := NewTourHistoryService(repo, nil, logger.NewNopLogger())

	require.NoError(t, svc.handleEvent(ctx, events.BaseEvent{Type: "POINTS_ADJUSTED", Data: map[string]interface{}{"user_id": "u-1"}}))
	require.NoError(t, svc.handleEvent(ctx, events.BaseEvent{Type: events.TypeTourStarted, Data: map[string]interface{}{}}))
	assert.Empty(t, repo.events)
}

func TestTourHistory_StoreFailureIsRetried(t *testing.T) {
	repo := &fakeTourEventRepo{err: errors.New("db down")}
	svc := NewTourHistoryService(repo, nil, logger.NewNopLogger())

	err := svc.handleEvent(context.Background(), events.BaseEvent{
		Type: events.TypeTourStarted,
		Data: map[string]interface{}{"user_id": "u-1"},
	})
	assert.Error(t, err)
}

func TestTourHistory_WithoutDatabase(t *testing.T) {
	svc := NewTourHistoryService(nil, nil, logger.NewNopLogger())
	svc.Start()

	history, total, err := svc.GetHistory(context.Background(), "u-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, total)
}
