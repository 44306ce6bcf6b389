package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
)

func TestBroadcastDeliversToMatchingMaskOnly(t *testing.T) {
	mgr := eventbus.NewBroadcasterManager()
	b := eventbus.NewBroadcaster("process")
	l := eventbus.NewListener("caller")
	mgr.Subscribe(b, l, eventbus.BitProcessStateChanged)

	b.Broadcast(mgr, eventbus.BitProcessStdoutAvailable, "ignored")
	_, ok := l.NextEvent(10 * time.Millisecond)
	assert.False(t, ok)

	b.Broadcast(mgr, eventbus.BitProcessStateChanged, "stopped")
	evt, ok := l.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "stopped", evt.Payload)
	assert.Equal(t, b, evt.Source)
}

func TestMultipleBroadcastersOneListener(t *testing.T) {
	mgr := eventbus.NewBroadcasterManager()
	target := eventbus.NewBroadcaster("target")
	process := eventbus.NewBroadcaster("process")
	l := eventbus.NewListener("multi")

	mgr.Subscribe(target, l, eventbus.BitModulesLoaded)
	mgr.Subscribe(process, l, eventbus.BitProcessStateChanged)

	target.Broadcast(mgr, eventbus.BitModulesLoaded, "modules")
	process.Broadcast(mgr, eventbus.BitProcessStateChanged, "state")

	first, ok := l.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "modules", first.Payload)

	second, ok := l.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "state", second.Payload)
}

func TestHijackCapturesInPlaceOfNormalListener(t *testing.T) {
	mgr := eventbus.NewBroadcasterManager()
	b := eventbus.NewBroadcaster("process")
	normal := eventbus.NewListener("normal")
	hijack := eventbus.NewListener("hijack")
	mgr.Subscribe(b, normal, eventbus.BitProcessStateChanged)

	b.Hijack(hijack, eventbus.BitProcessStateChanged)
	b.Broadcast(mgr, eventbus.BitProcessStateChanged, "running")

	_, ok := normal.NextEvent(10 * time.Millisecond)
	assert.False(t, ok, "normal listener should not see hijacked events")

	evt, ok := hijack.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "running", evt.Payload)

	b.Unhijack()
	b.Broadcast(mgr, eventbus.BitProcessStateChanged, "stopped")
	evt, ok = normal.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "stopped", evt.Payload)
}

func TestBroadcasterCloseRemovesQueuedEvents(t *testing.T) {
	mgr := eventbus.NewBroadcasterManager()
	b1 := eventbus.NewBroadcaster("b1")
	b2 := eventbus.NewBroadcaster("b2")
	l := eventbus.NewListener("l")
	mgr.Subscribe(b1, l, eventbus.BitModulesLoaded)
	mgr.Subscribe(b2, l, eventbus.BitModulesLoaded)

	b1.Broadcast(mgr, eventbus.BitModulesLoaded, "from-b1")
	b2.Broadcast(mgr, eventbus.BitModulesLoaded, "from-b2")

	b1.Close(mgr)

	evt, ok := l.NextEvent(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "from-b2", evt.Payload, "event from closed broadcaster must have been purged")

	_, ok = l.NextEvent(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestListenerUnsubscribeAllOnDrop(t *testing.T) {
	mgr := eventbus.NewBroadcasterManager()
	b := eventbus.NewBroadcaster("b")
	l := eventbus.NewListener("l")
	mgr.Subscribe(b, l, eventbus.BitModulesLoaded)

	mgr.UnsubscribeAll(l)
	b.Broadcast(mgr, eventbus.BitModulesLoaded, "after-drop")

	_, ok := l.NextEvent(10 * time.Millisecond)
	assert.False(t, ok, "unsubscribed listener must not receive further events")
}

func TestPeekEventDoesNotConsume(t *testing.T) {
	l := eventbus.NewListener("l")
	l.AddEvent(eventbus.Event{Bits: eventbus.BitModulesLoaded, Payload: "x"})

	peeked, ok := l.PeekEvent()
	require.True(t, ok)
	assert.Equal(t, "x", peeked.Payload)

	next, ok := l.NextEvent(0)
	require.True(t, ok)
	assert.Equal(t, "x", next.Payload)
}
