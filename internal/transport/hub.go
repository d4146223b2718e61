package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBufferSize is the per-subscriber channel depth.
const subscriberBufferSize = 64

// Hub fans events out to every subscriber of a room. It is in-memory and
// scoped to one process.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // room -> subID -> ch
	logger      *zap.Logger
	closed      bool
	onDrop      func(room string)
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With(zap.String("component", "hub")),
	}
}

// OnDrop registers a callback invoked when an event is dropped for a slow
// subscriber. It must be set before the hub is used.
func (h *Hub) OnDrop(fn func(room string)) {
	h.onDrop = fn
}

// Subscribe registers a subscriber for room. The returned channel is closed
// when ctx is cancelled, on Unsubscribe, or when the hub closes.
func (h *Hub) Subscribe(ctx context.Context, room string) (<-chan Event, string) {
	subID := uuid.NewString()
	ch := make(chan Event, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[room]; !ok {
		h.subscribers[room] = make(map[string]chan Event)
	}
	h.subscribers[room][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", zap.String("room", room), zap.String("sub_id", subID))

	go func() {
		<-ctx.Done()
		h.Unsubscribe(room, subID)
	}()

	return ch, subID
}

// Publish delivers ev to every subscriber of room except excludeSubID.
// Delivery never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(room string, ev Event, excludeSubID string) {
	if ev.Room == "" {
		ev.Room = room
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers[room] {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropped event for slow subscriber",
				zap.String("room", room),
				zap.String("sub_id", id),
				zap.String("event", ev.Name))
			if h.onDrop != nil {
				h.onDrop(room)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(room, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[room]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, room)
	}

	h.logger.Debug("subscriber removed", zap.String("room", room), zap.String("sub_id", subID))
}

// Subscribers returns the number of subscribers of room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[room])
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for room, subs := range h.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subscribers, room)
	}
	h.logger.Debug("hub closed")
}
