package handler

import (
	"context"

	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/internal/pkg/serverutils"
	"loyalty-rewards-be/internal/service"
	internalWS "loyalty-rewards-be/internal/websocket"
	"loyalty-rewards-be/pkg/tour"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TourStreamHandler upgrades authenticated clients to a websocket that
// receives tour snapshots and rewards refresh nudges.
type TourStreamHandler struct {
	tours     service.ITourService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewTourStreamHandler(tours service.ITourService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *TourStreamHandler {
	return &TourStreamHandler{
		tours:     tours,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs handles websocket requests from the peer.
func (h *TourStreamHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on websocket requests, so the query
	// param comes first.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	claims, err := serverutils.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("TourStreamHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id := tour.Identity{UserID: claims.UserID, Role: tour.Role(claims.Role)}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("TourStreamHandler", "Starting WebSocket session", map[string]interface{}{"user_id": id.UserID})
		internalWS.ServeWs(h.hub, conn, id.UserID, func() internalWS.Message {
			return internalWS.Message{Type: service.MessageTourState, Data: h.tours.State(context.Background(), id)}
		}, h.Commands(id))
		h.logger.Info("TourStreamHandler", "WebSocket session ended", map[string]interface{}{"user_id": id.UserID})
	})(c)
}

// RegisterRoutes registers the websocket endpoint. Authentication happens
// inside ServeWs.
func (h *TourStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/tour/ws", h.ServeWs)
}
