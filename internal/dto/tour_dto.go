package dto

import (
	"time"

	"github.com/google/uuid"
)

type StartTourRequest struct {
	// An empty list is accepted and leaves the tour idle.
	Steps []string `json:"steps" validate:"max=50,dive,required,max=100"`
}

// TooltipCommand is the data of tooltip_show and tooltip_seen websocket commands.
type TooltipCommand struct {
	Id string `json:"id" validate:"required,max=100"`
}

type TooltipResponse struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Placement string `json:"placement"`
}

type TourProgressResponse struct {
	StepIds      []string `json:"step_ids"`
	CurrentIndex int      `json:"current_index"`
	Active       bool     `json:"active"`
}

type TourStateResponse struct {
	Version        uint64               `json:"version"`
	Role           string               `json:"role"`
	ActiveTooltip  *TooltipResponse     `json:"active_tooltip"`
	Tour           TourProgressResponse `json:"tour"`
	Phase          string               `json:"phase"`
	Seen           []string             `json:"seen"`
	TourInProgress bool                 `json:"tour_in_progress"`
}

type TooltipSeenResponse struct {
	Id   string `json:"id"`
	Seen bool   `json:"seen"`
}

type TourEventResponse struct {
	Id         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	StepIds    []string  `json:"step_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RefreshMessage tells a connected client to refetch points and badges.
type RefreshMessage struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
