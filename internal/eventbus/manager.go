package eventbus

import "sync"

type subscription struct {
	listener *Listener
	mask     Bits
}

// BroadcasterManager is the subscription registry that lets a single
// Listener subscribe to an event-kind mask matched across many
// Broadcasters. Its membership lock is always acquired before any
// Listener's broadcaster-set lock; every method
// here that also touches a Listener's private set does so only through
// Listener's self-locking helpers, after releasing mu, to avoid
// acquiring both locks nested in the wrong order.
type BroadcasterManager struct {
	mu   sync.Mutex
	subs map[*Broadcaster][]subscription
}

// NewBroadcasterManager creates an empty manager.
func NewBroadcasterManager() *BroadcasterManager {
	return &BroadcasterManager{subs: make(map[*Broadcaster][]subscription)}
}

// Subscribe registers l to receive events from b whose bits intersect
// mask.
func (m *BroadcasterManager) Subscribe(b *Broadcaster, l *Listener, mask Bits) {
	m.mu.Lock()
	m.subs[b] = append(m.subs[b], subscription{listener: l, mask: mask})
	m.mu.Unlock()

	l.trackSubscription(b, mask)
}

// Unsubscribe removes l's subscription to b, if any.
func (m *BroadcasterManager) Unsubscribe(b *Broadcaster, l *Listener) {
	m.mu.Lock()
	subs := m.subs[b]
	for i, s := range subs {
		if s.listener == l {
			m.subs[b] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	l.untrackSubscription(b)
}

// UnsubscribeAll removes every subscription held by l across every
// broadcaster it is registered with — called when a Listener is dropped.
func (m *BroadcasterManager) UnsubscribeAll(l *Listener) {
	for _, b := range l.subscribedBroadcasters() {
		m.Unsubscribe(b, l)
	}
}

// subscribersOf returns a snapshot of b's current subscriptions.
func (m *BroadcasterManager) subscribersOf(b *Broadcaster) []subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[b]
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

// broadcasterClosed drops b's membership and tells every subscriber to
// purge queued events that originated from it.
func (m *BroadcasterManager) broadcasterClosed(b *Broadcaster) {
	m.mu.Lock()
	subs := m.subs[b]
	delete(m.subs, b)
	m.mu.Unlock()

	for _, s := range subs {
		s.listener.untrackSubscription(b)
		s.listener.removeEventsFrom(b)
	}
}
