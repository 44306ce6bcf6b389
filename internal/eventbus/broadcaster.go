package eventbus

import "sync"

// Broadcaster emits events through a BroadcasterManager to whichever
// Listeners are subscribed to it. A Broadcaster never holds listener
// references directly except while a hijack is active, matching // "destruction order" contract (the manager owns subscription membership).
type Broadcaster struct {
	name string

	mu         sync.Mutex
	hijack     *Listener
	hijackMask Bits
}

// NewBroadcaster creates a named Broadcaster.
func NewBroadcaster(name string) *Broadcaster {
	return &Broadcaster{name: name}
}

// Name returns the broadcaster's diagnostic name.
func (b *Broadcaster) Name() string { return b.name }

// Broadcast delivers an event with the given bits and payload to every
// listener subscribed (through manager) to this broadcaster whose mask
// intersects bits, or — if a hijack is active — to the hijack listener
// alone, regardless of its subscribed mask (a hijack captures everything
// while active).
func (b *Broadcaster) Broadcast(manager *BroadcasterManager, bits Bits, payload any) {
	evt := Event{Bits: bits, Source: b, Payload: payload}

	b.mu.Lock()
	hijack := b.hijack
	b.mu.Unlock()
	if hijack != nil {
		hijack.AddEvent(evt)
		return
	}

	for _, sub := range manager.subscribersOf(b) {
		if sub.mask&bits != 0 {
			sub.listener.AddEvent(evt)
		}
	}
}

// Hijack installs a temporary listener that captures every event from this
// broadcaster in place of its normal subscribers, until Unhijack is called.
// Used to serialize stop-after-launch observation.
func (b *Broadcaster) Hijack(l *Listener, mask Bits) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hijack = l
	b.hijackMask = mask
}

// Unhijack removes the hijack listener, restoring normal delivery through
// the BroadcasterManager.
func (b *Broadcaster) Unhijack() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hijack = nil
	b.hijackMask = 0
}

// IsHijacked reports whether a hijack listener is currently installed.
func (b *Broadcaster) IsHijacked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hijack != nil
}

// Close notifies manager that this broadcaster is going away: every
// subscribed listener has queued events originating from b removed, and
// membership is dropped. Matches "when a broadcaster is dropped, it
// notifies all listeners, which remove queued events originating from it."
func (b *Broadcaster) Close(manager *BroadcasterManager) {
	manager.broadcasterClosed(b)
}
