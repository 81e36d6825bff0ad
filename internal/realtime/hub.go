package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/observability"
)

// Event types fanned out to rooms.
const (
	EventChatMessage  = "chat.message"
	EventNotification = "notification"
)

// Event is the frame written to websocket clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Module provides the hub to Fx and closes every connection on stop.
var Module = fx.Options(
	fx.Provide(NewHub),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			h.Close()
			return nil
		}})
	}),
)

// Hub relays events to rooms keyed by user id. Delivery is best effort:
// a client whose buffer is full misses the event and relies on REST polling.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[int64]map[*client]struct{}
	cfg     config.Realtime
	logger  *zap.Logger
	metrics *observability.Metrics
}

type client struct {
	userID int64
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub constructs an empty hub.
func NewHub(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[int64]map[*client]struct{}),
		cfg:     cfg.Realtime,
		logger:  logger,
		metrics: metrics,
	}
}

// Publish sends ev to every connection in the user's room and reports how
// many connections accepted it.
func (h *Hub) Publish(userID int64, ev Event) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal realtime event", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Debug("realtime buffer full; dropping event", zap.Int64("user_id", userID), zap.String("type", ev.Type))
		}
	}
	return delivered
}

// Connections reports how many connections are joined to a user's room.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, room := range h.rooms {
		for c := range room {
			c.close()
			h.metrics.RealtimeConnection(context.Background(), -1)
		}
		delete(h.rooms, userID)
	}
}

func (h *Hub) join(userID int64) *client {
	buffer := h.cfg.SendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	c := &client{userID: userID, send: make(chan []byte, buffer)}

	h.mu.Lock()
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[userID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.RealtimeConnection(context.Background(), 1)
	return c
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.userID]; ok {
		if _, member := room[c]; member {
			delete(room, c)
			c.close()
			h.metrics.RealtimeConnection(context.Background(), -1)
		}
		if len(room) == 0 {
			delete(h.rooms, c.userID)
		}
	}
	h.mu.Unlock()
}

// Serve joins conn to the user's room and pumps events until the peer goes
// away. It blocks for the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn, userID int64) {
	c := h.join(userID)
	h.logger.Debug("realtime client joined", zap.Int64("user_id", userID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, c)
	}()

	h.readPump(conn)
	h.leave(c)
	<-done
	_ = conn.Close()
	h.logger.Debug("realtime client left", zap.Int64("user_id", userID))
}

// readPump discards inbound frames; clients send over REST. It only exists to
// observe close frames and keep pong deadlines fresh.
func (h *Hub) readPump(conn *websocket.Conn) {
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	deadline := 2 * h.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
