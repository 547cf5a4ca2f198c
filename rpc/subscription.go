package rpc

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Subscription errors.
var (
	ErrSubscriptionManagerClosed = errors.New("rpc: subscription manager closed")
	ErrSubscriberBackpressure    = errors.New("rpc: subscriber send buffer full")
)

// subscription is one connection's interest in one EventKind.
type subscription struct {
	id     uint64
	kind   EventKind
	connID uint64
	send   chan []byte
}

// subscriptionManager tracks, per EventKind, the set of connections
// currently subscribed, and per connection, the subscriptions to tear
// down when it disconnects.
type subscriptionManager struct {
	mu        sync.RWMutex
	closed    bool
	nextID    atomic.Uint64
	byKind    map[EventKind]map[uint64]*subscription
	byConn    map[uint64]map[uint64]*subscription
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		byKind: make(map[EventKind]map[uint64]*subscription),
		byConn: make(map[uint64]map[uint64]*subscription),
	}
}

// subscribe registers connID's interest in kind, delivering future events
// of that kind to send. send must be buffered; a full buffer causes that
// connection's events to be dropped rather than blocking the emitter.
func (m *subscriptionManager) subscribe(connID uint64, kind EventKind, send chan []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrSubscriptionManagerClosed
	}
	id := m.nextID.Add(1)
	sub := &subscription{id: id, kind: kind, connID: connID, send: send}

	if m.byKind[kind] == nil {
		m.byKind[kind] = make(map[uint64]*subscription)
	}
	m.byKind[kind][id] = sub

	if m.byConn[connID] == nil {
		m.byConn[connID] = make(map[uint64]*subscription)
	}
	m.byConn[connID][id] = sub
	return id, nil
}

// unsubscribe removes a single subscription by id.
func (m *subscriptionManager) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for kind, subs := range m.byKind {
		if sub, ok := subs[id]; ok {
			delete(subs, id)
			delete(m.byConn[sub.connID], id)
			if len(subs) == 0 {
				delete(m.byKind, kind)
			}
			return
		}
	}
}

// removeConn drops every subscription belonging to connID, called when the
// connection closes.
func (m *subscriptionManager) removeConn(connID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byConn[connID] {
		for kind, subs := range m.byKind {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(m.byKind, kind)
				}
			}
		}
	}
	delete(m.byConn, connID)
}

// broadcast fans payload out to every subscriber of kind. A subscriber
// whose send buffer is full is skipped for this event rather than
// stalling delivery to everyone else.
func (m *subscriptionManager) broadcast(kind EventKind, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.byKind[kind] {
		select {
		case sub.send <- payload:
		default:
		}
	}
}

// close marks the manager closed; further subscribe calls fail.
func (m *subscriptionManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
