package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-rover/internal/log"
)

// ErrClientClosed is returned when sending to a client that has left.
var ErrClientClosed = errors.New("hub: client closed")

// Config configures queue sizes.
type Config struct {
	// Name for logging
	Name string

	// QueueSize bounds the shared broadcast queue.
	QueueSize int

	// ClientBuffer bounds each client's send channel. A client whose
	// buffer is full when a message fans out is evicted.
	ClientBuffer int
}

// DefaultConfig returns the queue sizes used by the control server.
func DefaultConfig() Config {
	return Config{
		Name:         "control",
		QueueSize:    256,
		ClientBuffer: 256,
	}
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	cfg Config
	log *slog.Logger

	// Registered clients
	clients map[*Client]struct{}

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Guards clients for read-only access from outside Run
	mu sync.RWMutex

	// Closed when Run returns
	stopped chan struct{}
	running atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// New creates a new Hub
func New(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Hub{
		cfg:        cfg,
		log:        log.Component("hub").With("hub", cfg.Name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, cfg.QueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run is the hub's single consumer. It returns when ctx is cancelled,
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.mu.Unlock()
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "client", client.ID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.log.Info("client disconnected", "client", client.ID, "clients", count)
			}

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut delivers message to a snapshot of the registered clients.
func (h *Hub) fanOut(message Message) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if client.Send(message) {
			h.delivered.Add(1)
			continue
		}
		// Client's buffer is full - they're too slow
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		client.Close()
		h.evicted.Add(1)
		h.log.Warn("evicted slow client", "client", client.ID)
	}
}

// Register adds client to the broadcast set.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.Close()
	}
}

// Unregister removes client from the broadcast set. Unknown clients are
// ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast queues msg for every registered client. It blocks while the
// queue is full and returns false only if the hub has stopped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	case <-h.stopped:
		return false
	}
}

// TryBroadcast queues msg unless the queue is full, in which case the
// message is dropped.
func (h *Hub) TryBroadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	if !h.Broadcast(msg) {
		return ErrStopped
	}
	return nil
}

// ErrStopped is returned when broadcasting on a hub whose Run has exited.
var ErrStopped = errors.New("hub: stopped")

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats contains hub statistics
type Stats struct {
	Clients   int    `json:"clients"`
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		Clients:   h.ClientCount(),
		Queued:    len(h.broadcast),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}
