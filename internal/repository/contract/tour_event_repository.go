package contract

import (
	"context"

	"loyalty-rewards-be/internal/model"
)

type TourEventRepository interface {
	Create(ctx context.Context, event *model.TourEvent) error
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.TourEvent, int64, error)
}
