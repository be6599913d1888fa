package observer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// DefaultSubscriberBuffer is the channel depth used when NewBroadcaster is
// given a non-positive size.
const DefaultSubscriberBuffer = 64

// Broadcaster fans packets out to any number of subscribers. A subscriber
// whose channel is full misses packets; the engine is never blocked.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan sniffer.SniffedPacket
	buffer      int
	closed      bool
	dropped     uint64
}

// NewBroadcaster returns a Broadcaster whose subscriber channels hold
// buffer packets.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subscribers: make(map[string]chan sniffer.SniffedPacket),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. The returned ID is passed to
// Unsubscribe. After Close the channel is returned already closed.
func (b *Broadcaster) Subscribe() (string, <-chan sniffer.SniffedPacket) {
	id := uuid.NewString()
	ch := make(chan sniffer.SniffedPacket, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Observe implements sniffer.Observer.
func (b *Broadcaster) Observe(p sniffer.SniffedPacket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- p:
		default:
			b.dropped++
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
