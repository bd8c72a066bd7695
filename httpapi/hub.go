package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Stream event types.
const (
	EventSnapshot = "snapshot"
	EventPins     = "pins"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	URLs      []string  `json:"urls"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub broadcasts pinned set changes to stream subscribers. Every event
// carries the full set, so a subscriber that misses one only needs the next.
type Hub struct {
	mu   sync.Mutex
	log  pslog.Logger
	seq  uint64
	subs map[chan StreamEvent]struct{}
}

// NewHub constructs a hub.
func NewHub(logger pslog.Logger) *Hub {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		log:  logger.With("component", "hub"),
		subs: make(map[chan StreamEvent]struct{}),
	}
}

// PublishPins sends the current pinned set to every subscriber.
func (h *Hub) PublishPins(urls []string) {
	if urls == nil {
		urls = []string{}
	}
	h.publish(StreamEvent{
		Type:      EventPins,
		URLs:      append([]string(nil), urls...),
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber and returns its channel with an
// unsubscribe func.
func (h *Hub) Subscribe() (<-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 16)
	h.subs[ch] = struct{}{}
	h.log.Info("hub subscribe", "subs", len(h.subs))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			h.log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	subs := len(h.subs)
	h.mu.Unlock()

	h.log.Trace("hub pins event", "seq", event.Seq, "urls", len(event.URLs), "subs", subs)
	if dropped > 0 {
		h.log.Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}
