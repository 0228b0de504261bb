package tour

import "time"

// Identity is the authenticated user the controller is scoped to.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// ActiveTooltip is the tooltip currently on screen.
type ActiveTooltip struct {
	ID   string            `json:"id"`
	Data TooltipDefinition `json:"data"`
}

// TourState is the in-memory progress of a guided sequence.
// Active=false with no steps is the idle state.
type TourState struct {
	StepIDs      []string `json:"step_ids"`
	CurrentIndex int      `json:"current_index"`
	Active       bool     `json:"active"`
}

func idleTour() TourState {
	return TourState{StepIDs: []string{}}
}

// Phase is the tour sub-state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseAwaitingStep Phase = "awaiting_step"
	PhaseShowing      Phase = "showing"
)

// Snapshot is an immutable copy of the controller state handed to
// subscribers. Version increases with every change so consumers receiving
// snapshots out of order can drop stale ones.
type Snapshot struct {
	Version        uint64         `json:"version"`
	Identity       Identity       `json:"identity"`
	ActiveTooltip  *ActiveTooltip `json:"active_tooltip"`
	Tour           TourState      `json:"tour"`
	Phase          Phase          `json:"phase"`
	Seen           []string       `json:"seen"`
	TourInProgress bool           `json:"tour_in_progress"`
}

// FlagReason says why the tour-in-progress flag changed.
type FlagReason string

const (
	FlagTourStarted   FlagReason = "TOUR_STARTED"
	FlagTourCompleted FlagReason = "TOUR_COMPLETED"
	FlagTourAbandoned FlagReason = "TOUR_ABANDONED"
)

// FlagChange is emitted to the FlagObserver whenever a tour starts or ends.
type FlagChange struct {
	UserID     string     `json:"user_id"`
	Reason     FlagReason `json:"reason"`
	StepIDs    []string   `json:"step_ids"`
	InProgress bool       `json:"in_progress"`
	OccurredAt time.Time  `json:"occurred_at"`
}
