package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"loyalty-rewards-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// Message is the envelope of everything pushed to browser clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-device)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Dedicated Logger
	logger logger.ILogger

	// instanceID marks cluster envelopes so an instance skips its own.
	instanceID string

	// snapshotTypes are message types where only the newest queued frame
	// is worth writing.
	snapshotTypes map[string]bool

	// done is closed when Run returns.
	done chan struct{}
}

// NewHub creates a hub. Queued messages of any of snapshotTypes replace
// older queued ones of the same type.
func NewHub(rdb *redis.Client, log logger.ILogger, snapshotTypes ...string) *Hub {
	types := make(map[string]bool, len(snapshotTypes))
	for _, t := range snapshotTypes {
		types[t] = true
	}
	return &Hub{
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		clients:       make(map[string][]*Client),
		rdb:           rdb,
		logger:        log,
		instanceID:    uuid.NewString(),
		snapshotTypes: types,
		done:          make(chan struct{}),
	}
}

// Run serves register/unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave hands client to Run for removal. After Run has returned it removes
// the client itself.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

func (h *Hub) registeredLocked(client *Client) bool {
	for _, c := range h.clients[client.UserID] {
		if c == client {
			return true
		}
	}
	return false
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

// ConnectedUsers lists users with at least one local connection.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Send pushes a typed message to every device of userID, locally and on
// other instances through Redis.
func (h *Hub) Send(userID string, msgType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode message", map[string]interface{}{"type": msgType, "error": err.Error()})
		return
	}

	h.deliverLocal(userID, Frame{Type: msgType, Payload: payload})

	if h.rdb != nil {
		envelope, _ := json.Marshal(map[string]interface{}{
			"origin":         h.instanceID,
			"target_user_id": userID,
			"type":           msgType,
			"message":        json.RawMessage(payload),
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, envelope).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish to cluster channel", map[string]interface{}{"error": err.Error()})
		}
	}
}

// SendLocal pushes to this instance's connections only. Used for messages
// every instance produces on its own, such as refresh ticks.
func (h *Hub) SendLocal(userID string, msgType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return
	}
	h.deliverLocal(userID, Frame{Type: msgType, Payload: payload})
}

func (h *Hub) deliverLocal(userID string, frame Frame) {
	// Hold the read lock while sending so removeClient cannot close a
	// channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[userID] {
		select {
		case client.Send <- frame:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{"user_id": userID})
			go h.leave(client)
		}
	}
}

// subscribeToRedis relays messages published by other instances. Every
// instance subscribes to one channel and delivers only to its local users.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope struct {
				Origin       string          `json:"origin"`
				TargetUserID string          `json:"target_user_id"`
				Type         string          `json:"type"`
				Message      json.RawMessage `json:"message"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if envelope.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(envelope.TargetUserID, Frame{Type: envelope.Type, Payload: envelope.Message})
		}
	}
}
