package events

import (
	"sync"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// Hub fans committed events out to in-process subscribers. Slow subscribers
// drop events rather than block writers; the persisted feed is authoritative.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs: make(map[int]chan Event),
		log:  log.Named("events.hub"),
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultSubscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn("subscriber buffer full, dropping event",
				zap.Int("subscriber", id),
				zap.String("type", string(ev.Type)),
			)
		}
	}
}
