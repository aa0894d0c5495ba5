package node

import (
	"sync"
	"time"

	"github.com/house-audio/audionode/internal/audio"
)

// Event kinds published by the manager.
const (
	EventDeviceFound        = "device.found"
	EventDeviceRemoved      = "device.removed"
	EventDeviceStateChanged = "device.state_changed"
	EventLinkCreated        = "link.created"
	EventLinkDestroyed      = "link.destroyed"
	EventLinkVolumeChanged  = "link.volume_changed"
	EventOutputAdded        = "output.added"
	EventOutputRemoved      = "output.removed"
)

// Event is a state change notification pushed to subscribers.
// Exactly one of Device, Link, Output is set, matching Kind.
type Event struct {
	Kind      string        `json:"kind"`
	Device    *Device       `json:"device,omitempty"`
	Link      *Link         `json:"link,omitempty"`
	Output    *audio.Output `json:"output,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// subscriberBufferSize is the per-subscriber channel capacity. Slow
// subscribers lose events rather than stalling the manager.
const subscriberBufferSize = 32

// broadcaster fans events out to subscribers.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]chan Event)}
}

// subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel closes on unsubscribe or shutdown.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBufferSize)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish delivers an event to every subscriber without blocking.
func (b *broadcaster) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// close shuts down all subscriber channels.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
