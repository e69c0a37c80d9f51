package devserver

import (
	"log/slog"
	"sync"

	"github.com/spachava753/sitebuild/internal/models"
)

// Hub fans reload events out to connected clients. A client whose buffer is
// full misses the event instead of blocking the broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[chan models.ReloadEvent]struct{}
	buffer  int
	closed  bool
	logger  *slog.Logger
}

// NewHub creates a Hub whose clients buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[chan models.ReloadEvent]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Subscribe registers a client. The returned func unregisters it. After
// Close the channel is returned already closed.
func (h *Hub) Subscribe() (<-chan models.ReloadEvent, func()) {
	ch := make(chan models.ReloadEvent, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.clients[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		})
	}
}

// Notify broadcasts ev to every client.
func (h *Hub) Notify(ev models.ReloadEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	h.logger.Debug("broadcast reload", "category", ev.Category, "kind", ev.Kind, "clients", len(h.clients), "dropped", dropped)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
	}
	clear(h.clients)
}
