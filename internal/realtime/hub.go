package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Room keys. Every connection joins its user room and, for educators and
// staff, the matching role broadcast room. Doubt rooms are joined on demand
// via subscribe messages.
const (
	RoomEducators = "role:educator"
	RoomStaff     = "role:staff"
)

// UserRoom returns the per-user room key.
func UserRoom(userID string) string { return "user:" + userID }

// DoubtRoom returns the per-doubt room key.
func DoubtRoom(doubtID string) string { return "doubt:" + doubtID }

// Event is the wire format delivered to subscribers and relayed over Redis
// so every API instance fans out the same events.
type Event struct {
	Event   string          `json:"event"`
	Rooms   []string        `json:"rooms"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub routes events to room subscribers. When a Redis client is provided,
// publishes go through a Redis channel and each instance delivers to its own
// local connections from the subscription loop; without Redis the hub
// delivers directly (single-instance mode).
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger

	redis   *redis.Client
	channel string
}

// NewHub constructs a hub. redisClient may be nil.
func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
		redis:   redisClient,
		channel: "realtime:events",
	}
}

// Run consumes the Redis relay channel until the context is cancelled.
// No-op without Redis.
func (h *Hub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}
	sub := h.redis.Subscribe(ctx, h.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("realtime: bad relay payload", zap.Error(err))
				continue
			}
			h.deliver(event)
		}
	}
}

// Publish fans an event out to the given rooms. Delivery is at-least-once;
// a subscriber joined to several target rooms may see duplicates.
func (h *Hub) Publish(ctx context.Context, event string, payload interface{}, rooms ...string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal realtime payload: %w", err)
	}
	ev := Event{Event: event, Rooms: rooms, Payload: raw}

	if h.redis != nil {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal realtime event: %w", err)
		}
		if err := h.redis.Publish(ctx, h.channel, body).Err(); err != nil {
			return fmt.Errorf("publish realtime event: %w", err)
		}
		return nil
	}

	h.deliver(ev)
	return nil
}

func (h *Hub) deliver(ev Event) {
	body, err := json.Marshal(struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Event: ev.Event, Payload: ev.Payload})
	if err != nil {
		h.logger.Warn("realtime: marshal outbound event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range ev.Rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		select {
		case c.send <- body:
		default:
			// Slow consumer: drop rather than block the fan-out.
			h.logger.Debug("realtime: send buffer full, dropping event",
				zap.String("event", ev.Event), zap.String("user_id", c.userID))
		}
	}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize reports current local membership, used by tests and diagnostics.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
