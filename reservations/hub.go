package reservations

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"jimgabang/models"
)

const writeWait = 5 * time.Second

// CapacityEvent is pushed to live subscribers after every capacity change.
type CapacityEvent struct {
	ServiceID         primitive.ObjectID `json:"service_id"`
	AvailableBag      int                `json:"available_bag"`
	TotalAvailableBag int                `json:"total_available_bag"`
	Deleted           bool               `json:"deleted,omitempty"`
}

func eventOf(s *models.Service) CapacityEvent {
	return CapacityEvent{
		ServiceID:         s.ID,
		AvailableBag:      s.AvailableBag,
		TotalAvailableBag: s.TotalAvailableBag,
	}
}

// Hub fans capacity events out to the websocket subscribers of each service.
type Hub struct {
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	subscribers map[primitive.ObjectID]map[*websocket.Conn]struct{}
	closed      bool
	log         *zap.Logger
}

// NewHub accepts upgrades from the given origins; "*" admits any origin.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[primitive.ObjectID]map[*websocket.Conn]struct{}),
		log:         log,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Serve upgrades the request, sends the current capacity of s and keeps the
// subscription open until the peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, s *models.Service) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(eventOf(s)); err != nil {
		conn.Close()
		return
	}

	if !h.add(s.ID, conn) {
		conn.Close()
		return
	}
	defer h.remove(s.ID, conn)

	for {
		// Keep reading so close frames and disconnects are noticed.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(id primitive.ObjectID, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.subscribers[id] == nil {
		h.subscribers[id] = make(map[*websocket.Conn]struct{})
	}
	h.subscribers[id][conn] = struct{}{}
	return true
}

func (h *Hub) remove(id primitive.ObjectID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subscribers[id]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subscribers, id)
		}
	}
	conn.Close()
}

// Publish sends the capacity of s to its subscribers, dropping any that
// cannot be written to.
func (h *Hub) Publish(s *models.Service) {
	h.broadcast(s.ID, eventOf(s))
}

// Drop notifies subscribers that the service is gone and disconnects them.
func (h *Hub) Drop(id primitive.ObjectID) {
	h.broadcast(id, CapacityEvent{ServiceID: id, Deleted: true})

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subscribers[id] {
		conn.Close()
	}
	delete(h.subscribers, id)
}

func (h *Hub) broadcast(id primitive.ObjectID, ev CapacityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subscribers[id] {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			delete(h.subscribers[id], conn)
			conn.Close()
		}
	}
}

// Subscribers is the number of live connections for a service.
func (h *Hub) Subscribers(id primitive.ObjectID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[id])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, conns := range h.subscribers {
		for conn := range conns {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		}
		delete(h.subscribers, id)
	}
}
