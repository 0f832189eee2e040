package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hearth/api/internal/logging"
)

// Hub fans events out to websocket clients, one room subscription per
// connection. It consumes the Redis event stream so clients on any API
// instance see mutations from every instance.
type Hub struct {
	broadcaster *RedisBroadcaster
	upgrader    websocket.Upgrader
	logger      zerolog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]string
}

func NewHub(broadcaster *RedisBroadcaster, allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &Hub{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowed["*"] {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		logger:  logging.WithComponent("hub"),
		clients: make(map[*websocket.Conn]string),
	}
}

// Run consumes the event stream until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.broadcaster.Subscribe(ctx)
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
				h.logger.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event Event) {
	// Snapshot under the read lock; writing to a conn can be slow and
	// failed conns get deleted, which must not race the iteration.
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, roomID := range h.clients {
		if roomID == event.RoomID {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and subscribes it to one room's
// events. The read loop only serves as a disconnect detector.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, roomID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = roomID
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Str("room_id", roomID).Int("clients", total).Msg("websocket connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", remaining).Msg("websocket disconnected")
			return
		}
	}
}
