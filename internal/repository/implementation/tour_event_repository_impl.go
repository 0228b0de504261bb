package implementation

import (
	"context"

	"loyalty-rewards-be/internal/model"
	"loyalty-rewards-be/internal/repository/contract"

	"gorm.io/gorm"
)

type tourEventRepository struct {
	db *gorm.DB
}

func NewTourEventRepository(db *gorm.DB) contract.TourEventRepository {
	return &tourEventRepository{db: db}
}

func (r *tourEventRepository) Create(ctx context.Context, event *model.TourEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *tourEventRepository) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.TourEvent, int64, error) {
	var events []model.TourEvent
	var total int64

	db := r.db.WithContext(ctx).Model(&model.TourEvent{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error

	return events, total, err
}
