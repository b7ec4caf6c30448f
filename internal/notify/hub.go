// Package notify fans committed batches out to in-process subscribers and
// websocket clients.
//
// Publish never blocks the write actor. A subscriber whose buffer is full
// misses the event and the drop is counted.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/roach88/chii/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Event is the wire form of one commit.
type Event struct {
	Type   string       `json:"type"`
	Commit model.Commit `json:"commit"`
}

// Stats reports hub occupancy.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	WSClients   int   `json:"ws_clients"`
	Dropped     int64 `json:"dropped"`
}

// Hub implements actor.Notifier.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	wsClients map[*wsClient]struct{}
	closed    bool
	dropped   atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		wsClients: make(map[*wsClient]struct{}),
	}
}

// Subscription receives commits on C until Close.
type Subscription struct {
	C    <-chan model.Commit
	ch   chan model.Commit
	hub  *Hub
	once sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a subscriber with the given buffer; n <= 0 uses
// DefaultBuffer. On a closed hub the returned channel is already closed.
func (h *Hub) Subscribe(n int) *Subscription {
	if n <= 0 {
		n = DefaultBuffer
	}
	ch := make(chan model.Commit, n)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers c to every subscriber and websocket client without
// blocking.
func (h *Hub) Publish(c model.Commit) {
	msg, err := json.Marshal(Event{Type: "commit", Commit: c})
	if err != nil {
		slog.Error("marshal commit event", "batch_id", c.BatchID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		select {
		case s.ch <- c:
		default:
			h.dropped.Add(1)
		}
	}
	for ws := range h.wsClients {
		select {
		case ws.send <- msg:
		default:
			h.dropped.Add(1)
			slog.Warn("websocket client too slow, dropping event", "seq", c.Seq)
		}
	}
}

// Stats returns the current counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Subscribers: len(h.subs),
		WSClients:   len(h.wsClients),
		Dropped:     h.dropped.Load(),
	}
}

// Close disconnects everyone. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	clients := h.wsClients
	h.subs = make(map[*Subscription]struct{})
	h.wsClients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
	for ws := range clients {
		ws.stop()
	}
}

func (h *Hub) addWS(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wsClients[c] = struct{}{}
	return true
}

func (h *Hub) removeWS(c *wsClient) {
	h.mu.Lock()
	delete(h.wsClients, c)
	h.mu.Unlock()
	c.stop()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
