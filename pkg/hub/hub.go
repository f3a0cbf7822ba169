// Package hub fans console messages out to websocket clients. Each client
// subscribes to one Kind and only receives messages of that kind.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind names the stream a message belongs to.
type Kind string

// Console streams.
const (
	KindStatus Kind = "status"
	KindLog    Kind = "log"
)

// Message is one JSON payload for every subscriber of Kind.
type Message struct {
	Kind Kind
	Data []byte
}

// Hub tracks subscribers per kind and routes broadcasts to them.
type Hub struct {
	logger *slog.Logger

	clients map[Kind]map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	running atomic.Bool
	dropped atomic.Int64
}

// New creates a Hub. Call Run before clients connect.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "hub"),
		clients:    make(map[Kind]map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's send channel. A Hub runs at most once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for kind, subs := range h.clients {
				for c := range subs {
					close(c.send)
				}
				delete(h.clients, kind)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			subs := h.clients[c.kind]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.clients[c.kind] = subs
			}
			subs[c] = struct{}{}
			count := len(subs)
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "kind", c.kind, "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			count := len(h.clients[c.kind])
			h.mu.Unlock()
			h.logger.Debug("client left", "kind", c.kind, "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients[msg.Kind] {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.logger.Warn("dropped slow client", "kind", msg.Kind)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c and closes its queue. Callers hold mu.
func (h *Hub) drop(c *Client) {
	subs := h.clients[c.kind]
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	close(c.send)
}

func (h *Hub) add(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues data for subscribers of kind. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Publish(kind Kind, data []byte) {
	select {
	case h.broadcast <- Message{Kind: kind, Data: data}:
	default:
		h.dropped.Add(1)
	}
}

// PublishJSON encodes v and publishes it under kind.
func (h *Hub) PublishJSON(kind Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(kind, data)
	return nil
}

// ClientCount returns the number of subscribers of kind, or of every kind
// when kind is empty.
func (h *Hub) ClientCount(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if kind != "" {
		return len(h.clients[kind])
	}
	n := 0
	for _, subs := range h.clients {
		n += len(subs)
	}
	return n
}

// Dropped returns how many publishes were discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
