package events

import (
	"sync"

	"snapvision/internal/dto"
	"snapvision/internal/logger"

	"github.com/google/uuid"
)

const (
	// DefaultSubscriberBuffer is how many events a subscriber may fall behind.
	DefaultSubscriberBuffer = 16
	// MaxConsecutiveDrops disconnects a subscriber that stopped reading.
	MaxConsecutiveDrops = 8
)

// Subscription receives detection events published after it was created.
// Events is closed when the subscription ends.
type Subscription struct {
	ID     string
	Events <-chan dto.DetectionEvent

	ch        chan dto.DetectionEvent
	sent      uint64
	dropped   uint64
	streak    int
	closeOnce sync.Once
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// HubStats is a snapshot of Hub counters.
type HubStats struct {
	Subscribers  int    `json:"subscribers"`
	Published    uint64 `json:"published"`
	Dropped      uint64 `json:"dropped"`
	Disconnected uint64 `json:"disconnected"`
}

// Hub fans detection events out to subscribers without ever blocking the
// publisher: a full subscriber buffer drops the event for that subscriber.
type Hub struct {
	subscribers  map[string]*Subscription
	buffer       int
	published    uint64
	dropped      uint64
	disconnected uint64
	closed       bool
	mutex        sync.Mutex
	logger       *logger.Logger
}

func NewHub(buffer int, logger *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan dto.DetectionEvent, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), Events: ch, ch: ch}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		sub.close()
		return sub
	}
	h.subscribers[sub.ID] = sub
	h.logger.Info("Subscriber %s connected. Total: %d", sub.ID, len(h.subscribers))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	sub.close()
	h.logger.Info("Subscriber %s disconnected. Total: %d", id, len(h.subscribers))
}

// Publish delivers event to every subscriber with room in its buffer.
func (h *Hub) Publish(event dto.DetectionEvent) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.published++

	for id, sub := range h.subscribers {
		select {
		case sub.ch <- event:
			sub.sent++
			sub.streak = 0
		default:
			sub.dropped++
			sub.streak++
			h.dropped++
			if sub.streak >= MaxConsecutiveDrops {
				delete(h.subscribers, id)
				sub.close()
				h.disconnected++
				h.logger.Warning("Subscriber %s disconnected after %d dropped events", id, sub.streak)
			}
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Stats() HubStats {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return HubStats{
		Subscribers:  len(h.subscribers),
		Published:    h.published,
		Dropped:      h.dropped,
		Disconnected: h.disconnected,
	}
}

// Close ends every subscription; later publishes are ignored.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, id)
	}
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.closed
}
