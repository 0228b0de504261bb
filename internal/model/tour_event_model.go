package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TourEvent records one tour lifecycle transition of a user.
type TourEvent struct {
	ID         uuid.UUID                   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     string                      `gorm:"type:varchar(100);not null;index:idx_tour_events_user_occurred,priority:1" json:"user_id"`
	Type       string                      `gorm:"type:varchar(30);not null" json:"type"`
	StepIDs    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"step_ids"`
	OccurredAt time.Time                   `gorm:"not null;index:idx_tour_events_user_occurred,priority:2" json:"occurred_at"`
	CreatedAt  time.Time                   `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TourEvent) TableName() string {
	return "tour_events"
}
