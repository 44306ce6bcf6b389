package target_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/breakpoint"
	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/transport"
	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
	"github.com/mark-grimes/gdbremote-core/pkg/target"
)

// scriptedPipe answers every outbound command frame with whatever handler
// matches its prefix, mirroring the Remote Client's own test fixture so
// these scenarios exercise the real wire framing rather than a mocked
// Target.
type scriptedPipe struct {
	pipe     *transport.Pipe
	handlers []func(cmd string) ([]byte, bool)
}

func newScriptedPipe(t *testing.T) *scriptedPipe {
	t.Helper()
	sp := &scriptedPipe{pipe: transport.NewPipe()}
	sp.pipe.OnWrite = func(p *transport.Pipe, data []byte) {
		if len(data) == 1 {
			return // ack/nak byte or the 0x03 interrupt byte
		}
		payload, err := packet.DecodeFrame(data)
		if err != nil {
			return
		}
		cmd := string(payload)
		for _, h := range sp.handlers {
			if reply, ok := h(cmd); ok {
				p.Feed([]byte{'+'})
				p.Feed(packet.Encode(reply))
				return
			}
		}
	}
	return sp
}

// on registers a handler matched by command prefix, answering with a fixed
// reply every time the prefix matches.
func (sp *scriptedPipe) on(prefix string, reply []byte) {
	sp.handlers = append(sp.handlers, func(cmd string) ([]byte, bool) {
		if strings.HasPrefix(cmd, prefix) {
			return reply, true
		}
		return nil, false
	})
}

// onFunc registers a handler with custom matching/reply logic, checked
// before any prefix handlers registered earlier via on.
func (sp *scriptedPipe) onFunc(h func(cmd string) ([]byte, bool)) {
	sp.handlers = append(sp.handlers, h)
}

// feed pushes a reply frame straight onto the wire, simulating a stop
// reply arriving asynchronously rather than as a direct command response.
func (sp *scriptedPipe) feed(reply []byte) {
	sp.pipe.Feed(packet.Encode(reply))
}

// nextStopEvent drains listener until it finds the *stopreply.StopEvent
// the Async Event Thread publishes after Process/Threads bookkeeping,
// skipping the StateTransition events Process.SetState broadcasts on the
// same bit along the way.
func nextStopEvent(t *testing.T, listener *eventbus.Listener) *stopreply.StopEvent {
	t.Helper()
	for i := 0; i < 8; i++ {
		evt, ok := listener.NextEvent(time.Second)
		require.True(t, ok, "timed out waiting for stop event")
		if ev, ok := evt.Payload.(*stopreply.StopEvent); ok {
			return ev
		}
	}
	t.Fatal("no stop event observed")
	return nil
}

func newConnectedTarget(t *testing.T, sp *scriptedPipe, arch string, extraFeatures ...string) *target.Target {
	t.Helper()
	sp.on("QStartNoAckMode", []byte("OK"))
	features := append([]string{"qXfer:libraries-svr4:read+"}, extraFeatures...)
	sp.on("qSupported", []byte(strings.Join(features, ";")))
	sp.on("vCont?", []byte("vCont;c;C;s;S"))
	// The stub is already tracking a stopped inferior when the Target
	// connects, so the initial "?" query reports a real stop (ConnectRemote
	// ingests it, marking the process alive and breakpoints eligible for
	// installation) rather than the "nothing tracked yet" empty reply.
	sp.on("?", []byte("S05"))
	sp.on("qRegisterInfo", []byte{}) // no registers to probe; keep connect fast

	tg := target.New(client.New(sp.pipe, nil), nil, arch)
	require.NoError(t, tg.ConnectRemote(context.Background(), sp.pipe, ""))
	return tg
}

// QStartNoAckMode negotiates to OK and no +/- bytes are written to the
// wire afterward.
func TestNoAckHandshake(t *testing.T) {
	sp := newScriptedPipe(t)
	tg := newConnectedTarget(t, sp, "x86_64")

	assert.Equal(t, client.CapSupported, tg.Client().Capability("QStartNoAckMode"))

	before := len(sp.pipe.WrittenTo)
	sp.on("qHostInfo", []byte("OK"))
	_, err := tg.Client().Send(context.Background(), []byte("qHostInfo"), client.Options{})
	require.NoError(t, err)

	for _, w := range sp.pipe.WrittenTo[before:] {
		assert.False(t, len(w) == 1 && (w[0] == '+' || w[0] == '-'), "no ack/nak byte expected once no-ack mode is negotiated")
	}
}

// A pending breakpoint at a fixed file address resolves once the stub's
// library reply makes the module arrive, and the published stop carries
// reason "breakpoint" for the right thread.
func TestBreakpointHitOnLibraryLoad(t *testing.T) {
	sp := newScriptedPipe(t)
	tg := newConnectedTarget(t, sp, "x86_64")

	sp.on("Z0,", []byte("OK"))
	bp := tg.Breaks.CreateBreakpoint(breakpoint.Filter{}, breakpoint.AddressResolver{Addresses: []uint64{0x401000}}, breakpoint.Options{}, false)
	require.NotNil(t, bp)

	svr4 := `<library-list-svr4><library name="/opt/app/a.out" l_addr="0x0" l_ld="0x0"/></library-list-svr4>`
	sp.on("qXfer:libraries-svr4:read", []byte("l"+svr4))
	sp.onFunc(func(cmd string) ([]byte, bool) {
		if cmd != "c" {
			return nil, false
		}
		return []byte("T05thread:1;reason:breakpoint;library:;"), true
	})

	listener := eventbus.NewListener("test")
	tg.BusManager.Subscribe(tg.Broadcaster, listener, eventbus.BitProcessStateChanged)

	require.NoError(t, tg.Resume(context.Background(), nil))

	require.Len(t, bp.Locations, 1)
	require.NotNil(t, bp.Locations[0].Site)
	assert.Equal(t, breakpoint.SiteSoftware, bp.Locations[0].Site.Kind)
	assert.Equal(t, target.StateStopped, tg.Process.State())

	ev := nextStopEvent(t, listener)
	require.Len(t, ev.Threads, 1)
	assert.Equal(t, stopreply.ReasonBreakpoint, ev.Threads[0].Reason)
	assert.EqualValues(t, 1, ev.Threads[0].TID)
}

// On a MIPS-family target the awatch address is matched first; on other
// targets the requested watch address is used directly.
func TestWatchpointMismatchedHitAddress(t *testing.T) {
	for _, tc := range []struct {
		arch     string
		wantAddr uint64
	}{
		{arch: "mips", wantAddr: 0x1004},
		{arch: "x86_64", wantAddr: 0x1000},
	} {
		t.Run(tc.arch, func(t *testing.T) {
			sp := newScriptedPipe(t)
			tg := newConnectedTarget(t, sp, tc.arch)

			sp.on("Z2,", []byte("OK"))
			// SetWatchpoint reads a baseline value at install time and
			// rereads it once a hit is reported; answer both with the
			// binary "x" read the Target prefers, returning a different
			// value the second time so OldValue/NewValue are distinct.
			reads := 0
			sp.onFunc(func(cmd string) ([]byte, bool) {
				if !strings.HasPrefix(cmd, "x1000,4") {
					return nil, false
				}
				reads++
				if reads == 1 {
					return []byte{0x00, 0x00, 0x00, 0x00}, true
				}
				return []byte{0x01, 0x00, 0x00, 0x00}, true
			})

			wp, err := tg.Breaks.SetWatchpoint(context.Background(), 0x1000, 4, breakpoint.AccessWrite)
			require.NoError(t, err)
			assert.Equal(t, uint64(0x1000), wp.Address)

			sp.onFunc(func(cmd string) ([]byte, bool) {
				if cmd != "c" {
					return nil, false
				}
				return []byte("T05thread:1;watch:1000;awatch:1004;"), true
			})

			listener := eventbus.NewListener("test")
			tg.BusManager.Subscribe(tg.Broadcaster, listener, eventbus.BitProcessStateChanged)

			require.NoError(t, tg.Resume(context.Background(), nil))

			ev := nextStopEvent(t, listener)
			assert.Equal(t, stopreply.ReasonWatchpoint, ev.Threads[0].Reason)
			assert.Equal(t, tc.wantAddr, ev.Threads[0].WatchAddr)
			assert.Equal(t, wp.ID.String(), ev.Threads[0].WatchID)

			assert.EqualValues(t, 1, wp.HitCount)
			assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, wp.OldValue)
			assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, wp.NewValue)
		})
	}
}

// Requesting 6 bytes returns, after de-escaping, exactly the literal
// bytes, including ones that required escaping on the wire.
func TestBinaryMemoryReadWithEscape(t *testing.T) {
	sp := newScriptedPipe(t)
	tg := newConnectedTarget(t, sp, "x86_64")

	// Literal bytes 7d 23 24 2a 5d 10 ('}' '#' '$' '*' ']' DLE); the four
	// frame-delimiter-colliding characters ('}', '#', '$', '*') are each
	// escaped 0x7d <byte^0x20), ']' and DLE pass through unescaped.
	escaped := []byte{0x7d, 0x5d, 0x7d, 0x03, 0x7d, 0x04, 0x7d, 0x0a, 0x5d, 0x10}
	sp.onFunc(func(cmd string) ([]byte, bool) {
		if !strings.HasPrefix(cmd, "x") {
			return nil, false
		}
		return escaped, true
	})

	data, err := tg.ReadMemory(context.Background(), 0x2000, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7d, 0x23, 0x24, 0x2a, 0x5d, 0x10}, data)
}

// halt() sends the out-of-band 0x03 byte and the blocked resume returns
// without error once the stub answers with a stop reply.
func TestInterruptDuringLongContinue(t *testing.T) {
	sp := newScriptedPipe(t)
	tg := newConnectedTarget(t, sp, "x86_64")

	sp.onFunc(func(cmd string) ([]byte, bool) {
		if cmd != "c" {
			return nil, false
		}
		return nil, false // the continue itself gets no synchronous reply
	})

	resumed := make(chan error, 1)
	go func() { resumed <- tg.Resume(context.Background(), nil) }()

	require.Eventually(t, func() bool {
		return tg.Process.State() == target.StateRunning
	}, time.Second, 5*time.Millisecond)

	halted := make(chan error, 1)
	go func() { halted <- tg.Halt(context.Background()) }()

	// Give the interrupt byte a moment to land, then answer with a stop.
	time.Sleep(20 * time.Millisecond)
	sp.feed([]byte("T05thread:1;"))

	select {
	case err := <-resumed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not return after interrupt")
	}
	select {
	case err := <-halted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("halt did not return")
	}

	assert.Equal(t, target.StateStopped, tg.Process.State())
}

// A stop reply naming reason:exec resets the thread registry and memory
// cache so a subsequent resume operates cleanly on the new image.
func TestExecClearsState(t *testing.T) {
	sp := newScriptedPipe(t)
	tg := newConnectedTarget(t, sp, "x86_64")

	// Binary "x" reads are unsupported here, so ReadMemory falls back to "m".
	sp.on("x", []byte{})
	sp.on("m", []byte("aabbccdd"))
	_, err := tg.ReadMemory(context.Background(), 0x5000, 4)
	require.NoError(t, err)

	sp.onFunc(func(cmd string) ([]byte, bool) {
		if cmd != "c" {
			return nil, false
		}
		return []byte("T05thread:9;reason:exec;"), true
	})
	require.NoError(t, tg.Resume(context.Background(), nil))

	assert.Equal(t, 0, tg.Threads.Count(), "thread list must be cleared across exec")
	_, cached := tg.MemCache.Lookup(0x5000, 4)
	assert.False(t, cached, "memory cache must be invalidated across exec")
}
