package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Large enough for a tour_start command carrying a full step list.
	maxMessageSize = 8 << 10
	commandTimeout = 5 * time.Second

	// MessageError answers an inbound command that could not be applied.
	MessageError = "error"
)

// Frame is one queued outbound message. Type selects coalescing.
type Frame struct {
	Type    string
	Payload []byte
}

// Command is an inbound frame from the browser, e.g. {"type":"tour_next"}.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandFunc applies a command on behalf of the connected user.
type CommandFunc func(ctx context.Context, cmd Command) error

// Client is one browser connection of a user.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	UserID string

	// Send is the outbound queue; the hub closes it on unregister.
	Send chan Frame

	// OnCommand handles inbound commands. Nil makes the connection receive-only.
	OnCommand CommandFunc
}

// readPump applies inbound commands until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
			}
			return
		}
		c.handleCommand(raw)
	}
}

func (c *Client) handleCommand(raw []byte) {
	if c.OnCommand == nil {
		return
	}
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Type == "" {
		c.reply(MessageError, map[string]string{"message": "malformed command"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.OnCommand(ctx, cmd); err != nil {
		c.Hub.logger.Debug("Client", "Command rejected", map[string]interface{}{"user_id": c.UserID, "type": cmd.Type, "error": err.Error()})
		c.reply(MessageError, map[string]string{"command": cmd.Type, "message": err.Error()})
	}
}

// reply queues a message for this connection only. It is dropped when the
// queue is full.
func (c *Client) reply(msgType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.registeredLocked(c) {
		return
	}
	select {
	case c.Send <- Frame{Type: msgType, Payload: payload}:
	default:
	}
}

// writePump writes queued frames and pings until the queue is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			batch := []Frame{first}
			for n := len(c.Send); n > 0; n-- {
				f, ok := <-c.Send
				if !ok {
					break
				}
				batch = append(batch, f)
			}
			for _, f := range coalesce(batch, c.Hub.snapshotTypes) {
				if err := c.Conn.WriteMessage(websocket.TextMessage, f.Payload); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Warn("Client", "Ping failed", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
				return
			}
		}
	}
}

// coalesce keeps only the newest frame of every snapshot type in batch.
// Other frames pass through in order.
func coalesce(batch []Frame, snapshotTypes map[string]bool) []Frame {
	latest := make(map[string]int)
	for i, f := range batch {
		if snapshotTypes[f.Type] {
			latest[f.Type] = i
		}
	}
	if len(latest) == 0 {
		return batch
	}
	out := make([]Frame, 0, len(batch))
	for i, f := range batch {
		if snapshotTypes[f.Type] && latest[f.Type] != i {
			continue
		}
		out = append(out, f)
	}
	return out
}
