// Package hub fans queue change notifications out to open viewing sessions.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"qms/patient-queue/internal/models"
)

const (
	ChangeEntryCreated   = "entry.created"
	ChangeEntryAssigned  = "entry.assigned"
	ChangeEntryCompleted = "entry.completed"
	ChangeQueueReloaded  = "queue.reloaded"
	ChangeLoadFailed     = "queue.load_failed"
)

// Change describes one store mutation. From is empty for new entries; both
// statuses are empty for reloads and load failures.
type Change struct {
	Type    string             `json:"type"`
	EntryID string             `json:"entry_id,omitempty"`
	From    models.Status      `json:"from,omitempty"`
	To      models.Status      `json:"to,omitempty"`
	Entry   *models.QueueEntry `json:"entry,omitempty"`
	Error   string             `json:"error,omitempty"`
	At      time.Time          `json:"at"`
}

// Subscription narrows delivery to changes touching one status tab. An
// empty or "all" status receives everything.
type Subscription struct {
	Status string
}

type Client struct {
	ID           string
	Send         chan Change
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes the client and closes its Send channel. Safe to call
// more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// Publish never blocks: a client whose buffer is full misses the change.
func (h *Hub) Publish(change Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, change) {
			continue
		}
		select {
		case client.Send <- change:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("type", change.Type).Msg("drop change for slow client")
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func match(sub Subscription, change Change) bool {
	if sub.Status == "" || sub.Status == models.FilterAll {
		return true
	}
	if change.From == "" && change.To == "" {
		return true
	}
	return string(change.From) == sub.Status || string(change.To) == sub.Status
}
