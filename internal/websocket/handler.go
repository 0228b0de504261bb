package websocket

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection with the hub and blocks until it closes.
// When initial is set its message is queued before the client joins the
// hub, so it always arrives first. Inbound frames go to onCommand.
func ServeWs(hub *Hub, c *websocket.Conn, userID string, initial func() Message, onCommand CommandFunc) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Send: make(chan Frame, 256), OnCommand: onCommand}
	if initial != nil {
		msg := initial()
		if payload, err := json.Marshal(msg); err == nil {
			client.Send <- Frame{Type: msg.Type, Payload: payload}
		} else {
			hub.logger.Error("Hub", "Failed to encode initial message", map[string]interface{}{"error": err.Error()})
		}
	}
	if !hub.join(client) {
		hub.logger.Warn("Hub", "Hub stopped, refusing connection", map[string]interface{}{"user_id": userID})
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
