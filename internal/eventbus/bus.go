package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// DefaultDepth is the per-subscriber buffer used when none is configured.
const DefaultDepth = 256

// Bus fans host events out to subscribers. A plain subscriber whose buffer
// is full misses the event. A lossless subscriber is waited on instead, so
// Publish applies backpressure to the caller until it reads or cancels.
type Bus struct {
	mu    sync.Mutex
	subs  map[*subscriber]struct{}
	log   pslog.Logger
	depth int
}

type subscriber struct {
	ch       chan schema.HostEvent
	done     chan struct{}
	lossless bool
}

// New constructs a Bus with the default depth.
func New(logger pslog.Logger) *Bus {
	return NewWithDepth(logger, DefaultDepth)
}

// NewWithDepth constructs a Bus whose subscribers buffer depth events.
func NewWithDepth(logger pslog.Logger, depth int) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{
		subs:  make(map[*subscriber]struct{}),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber that may miss events when it falls
// behind. It returns the channel and a cancel func.
func (b *Bus) Subscribe() (<-chan schema.HostEvent, func()) {
	return b.subscribe(false)
}

// SubscribeLossless registers a subscriber that receives every event.
// Publish blocks while its buffer is full, so the consumer must keep
// reading until it cancels.
func (b *Bus) SubscribeLossless() (<-chan schema.HostEvent, func()) {
	return b.subscribe(true)
}

func (b *Bus) subscribe(lossless bool) (<-chan schema.HostEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{
		ch:       make(chan schema.HostEvent, b.depth),
		done:     make(chan struct{}),
		lossless: lossless,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count, "lossless", lossless)
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			// Release a Publish blocked on this subscriber before taking the lock.
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// Publish delivers event to every subscriber. Plain subscribers with a full
// buffer miss it and a warning is logged; lossless subscribers are waited on
// until they read or cancel.
func (b *Bus) Publish(event schema.HostEvent) {
	if b == nil {
		return
	}
	// Deliver under the lock so a concurrent cancel cannot close a channel
	// mid-send.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs {
		if sub.lossless {
			select {
			case sub.ch <- event:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Warn("eventbus dropped", "event", string(event.Type), "count", dropped)
	}
}
