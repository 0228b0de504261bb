package implementation

import (
	"context"
	"errors"
	"time"

	"loyalty-rewards-be/internal/model"
	"loyalty-rewards-be/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tourStateRepository struct {
	db *gorm.DB
}

// NewTourStateRepository stores tour state rows in Postgres.
func NewTourStateRepository(db *gorm.DB) contract.TourStateRepository {
	return &tourStateRepository{db: db}
}

func (r *tourStateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var m model.TourStateEntry
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return m.Value, true, nil
}

func (r *tourStateRepository) Set(ctx context.Context, key, value string) error {
	return r.upsert(ctx, key, value, nil)
}

func (r *tourStateRepository) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	return r.upsert(ctx, key, value, &expiresAt)
}

func (r *tourStateRepository) upsert(ctx context.Context, key, value string, expiresAt *time.Time) error {
	entry := model.TourStateEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

func (r *tourStateRepository) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&model.TourStateEntry{}).Error
}
