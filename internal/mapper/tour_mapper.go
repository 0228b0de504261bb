package mapper

import (
	"sort"

	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/model"
	"loyalty-rewards-be/pkg/tour"
)

func TooltipToResponse(id string, def tour.TooltipDefinition) dto.TooltipResponse {
	return dto.TooltipResponse{
		Id:        id,
		Title:     def.Title,
		Content:   def.Content,
		Placement: string(def.Placement),
	}
}

// TooltipTableToResponse lists a role's tooltips ordered by id.
func TooltipTableToResponse(table map[string]tour.TooltipDefinition) []dto.TooltipResponse {
	res := make([]dto.TooltipResponse, 0, len(table))
	for id, def := range table {
		res = append(res, TooltipToResponse(id, def))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Id < res[j].Id })
	return res
}

func SnapshotToResponse(s tour.Snapshot) *dto.TourStateResponse {
	res := &dto.TourStateResponse{
		Version: s.Version,
		Role:    string(s.Identity.Role),
		Tour: dto.TourProgressResponse{
			StepIds:      s.Tour.StepIDs,
			CurrentIndex: s.Tour.CurrentIndex,
			Active:       s.Tour.Active,
		},
		Phase:          string(s.Phase),
		Seen:           s.Seen,
		TourInProgress: s.TourInProgress,
	}
	if res.Tour.StepIds == nil {
		res.Tour.StepIds = []string{}
	}
	if res.Seen == nil {
		res.Seen = []string{}
	}
	if s.ActiveTooltip != nil {
		active := TooltipToResponse(s.ActiveTooltip.ID, s.ActiveTooltip.Data)
		res.ActiveTooltip = &active
	}
	return res
}

func TourEventToResponse(e model.TourEvent) dto.TourEventResponse {
	steps := []string(e.StepIDs)
	if steps == nil {
		steps = []string{}
	}
	return dto.TourEventResponse{
		Id:         e.ID,
		Type:       e.Type,
		StepIds:    steps,
		OccurredAt: e.OccurredAt,
	}
}
