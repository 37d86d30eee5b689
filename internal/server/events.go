package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

// EventType labels a change notification on the event feed.
type EventType string

const (
	EventMapCreated    EventType = "map.created"
	EventMapUpdated    EventType = "map.updated"
	EventMapDeleted    EventType = "map.deleted"
	EventMemoryCreated EventType = "memory.created"
	EventMemoryUpdated EventType = "memory.updated"
	EventMemoryDeleted EventType = "memory.deleted"
)

// Event is broadcast to every connected websocket client after a mutation.
type Event struct {
	Type     EventType `json:"type"`
	MapID    int64     `json:"map_id,omitempty"`
	MemoryID int64     `json:"memory_id,omitempty"`
	Time     time.Time `json:"time"`
}

// Hub fans events out to websocket clients through a single goroutine.
type Hub struct {
	log        *slog.Logger
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewHub builds an idle hub; call Run to start it.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Publish queues an event for broadcast. It never blocks a handler; when
// the queue is full the event is dropped.
func (h *Hub) Publish(ev Event) {
	ev.Time = time.Now().UTC()
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("event queue full, dropping", "type", ev.Type)
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Info("event client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.Info("event client disconnected", "total", len(h.clients))
			}

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades the connection and parks it on the hub. Client
// messages are read and discarded to notice disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	s.hub.register <- conn

	go func() {
		defer func() { s.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
