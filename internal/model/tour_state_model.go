package model

import "time"

// TourStateEntry is one key of the tour persistence adapter: a user's seen
// tooltip ids (JSON array) or a tour-in-progress flag.
type TourStateEntry struct {
	Key       string     `gorm:"type:varchar(200);primaryKey" json:"key"`
	Value     string     `gorm:"type:text;not null" json:"value"`
	ExpiresAt *time.Time `gorm:"index:idx_tour_state_entries_expires_at" json:"expires_at,omitempty"`
	UpdatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TourStateEntry) TableName() string {
	return "tour_state_entries"
}
