package state

import "sync"

// EventType tags a wallet change event.
type EventType string

const (
	EventAssetTracked    EventType = "asset_tracked"
	EventAssetUntracked  EventType = "asset_untracked"
	EventAccountCreated  EventType = "account_created"
	EventAccountSelected EventType = "account_selected"
	EventTxSubmitted     EventType = "tx_submitted"
)

// Event is a wallet change notification. Only the fields relevant to the
// event type are set.
type Event struct {
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol,omitempty"`
	Index  uint32    `json:"index,omitempty"`
	TxID   string    `json:"tx_id,omitempty"`
}

// Bus fans change events out to subscribers. Publishing never blocks: a
// subscriber that stops draining its channel loses events rather than
// stalling wallet commands.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer.
// The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default: // Slow subscriber: drop rather than block.
		}
	}
}

// Close unregisters and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
