package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/pkg/serverutils"
	internalWS "loyalty-rewards-be/internal/websocket"
	"loyalty-rewards-be/pkg/tour"
)

// Websocket command types. The resulting state reaches the client as a
// tour_state message.
const (
	CommandTourStart   = "tour_start"
	CommandTourNext    = "tour_next"
	CommandTourHide    = "tour_hide"
	CommandTooltipShow = "tooltip_show"
	CommandTooltipSeen = "tooltip_seen"
)

// Commands returns the inbound command handler for one connection of id.
func (h *TourStreamHandler) Commands(id tour.Identity) internalWS.CommandFunc {
	return func(ctx context.Context, cmd internalWS.Command) error {
		switch cmd.Type {
		case CommandTourNext:
			h.tours.NextStep(ctx, id)
		case CommandTourHide:
			h.tours.HideTooltip(ctx, id)
		case CommandTourStart:
			var req dto.StartTourRequest
			if err := decodeCommand(cmd, &req); err != nil {
				return err
			}
			h.tours.StartTour(ctx, id, req.Steps)
		case CommandTooltipShow, CommandTooltipSeen:
			var req dto.TooltipCommand
			if err := decodeCommand(cmd, &req); err != nil {
				return err
			}
			if cmd.Type == CommandTooltipShow {
				h.tours.ShowTooltip(ctx, id, req.Id)
			} else {
				h.tours.MarkSeen(ctx, id, req.Id)
			}
		default:
			return fmt.Errorf("unknown command %q", cmd.Type)
		}
		return nil
	}
}

func decodeCommand(cmd internalWS.Command, dst interface{}) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%s: missing data", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, dst); err != nil {
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return serverutils.ValidateRequest(dst)
}
