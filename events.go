package tautan

import (
	"sync"
	"sync/atomic"
)

// Event is an authentication lifecycle notification. The set of variants is
// closed: LoggedIn, LoggedOut and TokenRefreshed.
type Event interface {
	// Name returns the wire name of the event (login, logout, token_refresh).
	Name() string
	isEvent()
}

// LoggedIn is published after an explicit login stores new credentials.
type LoggedIn struct {
	AccessToken string
}

// LoggedOut is published after credentials are cleared, explicitly or forced.
type LoggedOut struct {
	Reason string
	Forced bool
}

// TokenRefreshed is published after a successful token refresh.
type TokenRefreshed struct {
	AccessToken string
}

func (LoggedIn) Name() string       { return "login" }
func (LoggedOut) Name() string      { return "logout" }
func (TokenRefreshed) Name() string { return "token_refresh" }

func (LoggedIn) isEvent()       {}
func (LoggedOut) isEvent()      {}
func (TokenRefreshed) isEvent() {}

// EventBus fans authentication events out to subscribers. Publish never
// blocks; a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan Event
	dropped atomic.Int64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has buffer space.
func (b *EventBus) Publish(ev Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of active subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}
