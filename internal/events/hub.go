// Package events fans lifecycle events out to websocket subscribers. Events
// carry ids, names and counts only; a target assignment is never published.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	ParticipantCreated = "participant.created"
	ParticipantUpdated = "participant.updated"
	ParticipantDeleted = "participant.deleted"
	MatchCreated       = "match.created"
	MatchStarted       = "match.started"
	MatchFinalized     = "match.finalized"
	MatchDeleted       = "match.deleted"
	DispatchCompleted  = "dispatch.completed"
	ResendCompleted    = "resend.completed"
)

type Event struct {
	Type    string    `json:"type"`
	MatchID string    `json:"matchId,omitempty"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

const (
	sendBuffer   = 64
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

type client struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// Hub is safe for concurrent use. The zero value is not; use NewHub.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub accepts websocket upgrades from any origin when checkOrigin is nil.
func NewHub(log *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish never blocks: a subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = h.now().UTC()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("event marshal failed", "type", e.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow subscriber")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// ServeHTTP upgrades to a websocket and streams events until the peer leaves.
// Inbound frames are read only to notice the disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{ws: ws, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// writer loop
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-c.send:
				if !ok {
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.remove(c)
					return
				}
			case <-ticker.C:
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.remove(c)
					return
				}
			}
		}
	}()

	// reader loop
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}
