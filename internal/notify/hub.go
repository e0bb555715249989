package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// Envelope is the wire form of every live notification.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps event in its envelope.
func Encode(event models.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventName(), err)
	}
	return json.Marshal(Envelope{Event: event.EventName(), Payload: payload})
}

// Subscription receives the encoded envelopes sent to one user.
type Subscription struct {
	UserID string
	C      <-chan []byte

	ch   chan []byte
	hub  *Hub
	once sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans notifications out to the live connections of this process.
// Sends never block: a subscriber that is not keeping up loses events.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	logger  zerolog.Logger
	dropped func()
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   map[string]map[*Subscription]struct{}{},
		buffer: buffer,
		logger: logger.With().Str("component", "notify_hub").Logger(),
	}
}

// OnDrop registers a callback run for every event dropped on a full buffer.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = fn
}

func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{UserID: userID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[*Subscription]struct{}{}
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// NotifyUser implements jobs.Notifier for a single process.
func (h *Hub) NotifyUser(ctx context.Context, userID string, event models.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	h.Deliver(userID, data)
	return nil
}

// Deliver hands an encoded envelope to every subscription of userID and
// returns how many received it. A user without connections is not an error.
func (h *Hub) Deliver(userID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- data:
			delivered++
		default:
			h.logger.Warn().Str("user_id", userID).Msg("subscriber too slow, notification dropped")
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
	return delivered
}
