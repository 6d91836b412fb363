package chain

import (
	"sync"

	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/pkg/types"
)

// EventKind identifies a connection change.
type EventKind int

const (
	AccountChanged EventKind = iota + 1
	NetworkChanged
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case AccountChanged:
		return "account_changed"
	case NetworkChanged:
		return "network_changed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every connection change. Account and
// Network carry the state after the change.
type Event struct {
	Kind    EventKind
	Account types.Account
	Network types.Network
	Err     error
}

const subscriberBuffer = 16

// hub fans events out to subscribers. A slow subscriber loses its oldest
// buffered events rather than blocking the publisher.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: evict the oldest so the newest state always arrives. Only
		// publish sends, under h.mu, so the freed slot stays free.
		select {
		case old := <-ch:
			logging.Warn("connection event dropped for slow subscriber",
				logging.Component("chain"), "event", old.Kind.String())
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// close closes every subscriber channel; later subscribers get a closed channel.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.closed = true
}
