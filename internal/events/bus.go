package events

import "sync"

// defaultBufSize is used when a subscriber does not specify a buffer.
const defaultBufSize = 256

// Bus is a channel-based pub-sub event bus. Topic subscriptions and
// all-topic subscriptions are supported; publishing never blocks, so a
// slow subscriber loses events rather than stalling the queue.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event // topic -> subscription ID -> channel
	all    map[int]chan Event
	closed bool
}

// Subscription identifies one subscriber and carries its receive channel.
type Subscription struct {
	// C receives published events. Closed when the subscription is
	// cancelled or the bus is closed.
	C <-chan Event

	id    int
	topic string // "" means all topics
	bus   *Bus
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.unsubscribe(s)
	}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[int]chan Event),
		all:  make(map[int]chan Event),
	}
}

// Subscribe creates a subscription to a single topic. bufSize <= 0 uses
// the default buffer.
func (b *Bus) Subscribe(topic string, bufSize int) *Subscription {
	return b.subscribe(topic, bufSize)
}

// SubscribeAll creates a subscription receiving events from every topic.
func (b *Bus) SubscribeAll(bufSize int) *Subscription {
	return b.subscribe("", bufSize)
}

func (b *Bus) subscribe(topic string, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return &Subscription{C: ch}
	}

	b.nextID++
	sub := &Subscription{C: ch, id: b.nextID, topic: topic, bus: b}
	if topic == "" {
		b.all[sub.id] = ch
	} else {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[int]chan Event)
		}
		b.subs[topic][sub.id] = ch
	}
	return sub
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if s.topic == "" {
		if ch, ok := b.all[s.id]; ok {
			delete(b.all, s.id)
			close(ch)
		}
		return
	}
	if ch, ok := b.subs[s.topic][s.id]; ok {
		delete(b.subs[s.topic], s.id)
		close(ch)
	}
}

// Publish sends an event to the topic's subscribers and to all-topic
// subscribers. Full channels drop the event for that subscriber.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, topic := range b.subs {
		for _, ch := range topic {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}
