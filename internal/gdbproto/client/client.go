// Package client implements the Remote Client: request/response
// matching over the packet codec and transport, scoped timeouts,
// capability-probe memoization, and the interrupt protocol. It serializes
// all synchronous sends behind a single send lock and hands asynchronous
// stop-reply and notification traffic to separate channels the Async Event
// Thread (pkg/target) drains.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/transport"
	"github.com/mark-grimes/gdbremote-core/internal/logger"
)

// Mode selects where a decoded non-notification reply is delivered.
type Mode int32

const (
	// ModeSync: replies answer the single outstanding Send call.
	ModeSync Mode = iota
	// ModeAsync: the process is running; replies are unsolicited stop
	// replies delivered to the async channel instead.
	ModeAsync
)

// Metrics is the narrow instrumentation seam implemented by pkg/metrics.
// A nil Metrics is valid and every method becomes a no-op, so
// instrumentation is opt-in and zero-overhead when disabled.
type Metrics interface {
	PacketSent(kind string)
	PacketReceived(kind string)
	Retransmit()
	CapabilityProbed(name, state string)
}

type noopMetrics struct{}

func (noopMetrics) PacketSent(string)           {}
func (noopMetrics) PacketReceived(string)        {}
func (noopMetrics) Retransmit()                  {}
func (noopMetrics) CapabilityProbed(string, string) {}

// Options configures a single Send call.
type Options struct {
	// SendAsync indicates this send may be issued while the process is
	// running: the caller is responsible for having already interrupted
	// the stub (see Interrupt) before calling Send with SendAsync set.
	SendAsync bool

	// Timeout overrides the client's default/scoped timeout for this call
	// alone. Zero means "use the current default".
	Timeout time.Duration

	// ResponseKindHint tells DecodeReply's caller that a binary ('x')
	// reply is expected, so the payload should be unescaped before use.
	ResponseKindHint ResponseKind
}

// ResponseKind distinguishes text from binary-escaped reply payloads.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseBinary
)

const (
	defaultTimeout       = 1 * time.Second
	defaultMaxRetries    = 3
	defaultInterruptWait = 2 * time.Second
	replyBufferSize      = 1
	notifyBufferSize     = 64
)

// Client is the Remote Client.
type Client struct {
	tr      transport.Transport
	metrics Metrics

	// sendMu serializes the request queue: only one Send/SendThenWaitConcat
	// may be in flight at a time.
	sendMu sync.Mutex

	// ackMode is true until QStartNoAckMode succeeds.
	ackMode atomic.Bool

	// mode selects sync vs async delivery in the read loop.
	mode atomic.Int32

	defaultTimeoutNs atomic.Int64

	replyCh  chan packet.Packet
	asyncCh  chan packet.Packet
	notifyCh chan []byte

	dead    atomic.Bool
	deadErr atomic.Value // error

	readDone chan struct{}

	caps *capabilitySet
}

// New constructs a Client bound to tr. The reader goroutine is started by
// Connect.
func New(tr transport.Transport, metrics Metrics) *Client {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	c := &Client{
		tr:       tr,
		metrics:  metrics,
		replyCh:  make(chan packet.Packet, replyBufferSize),
		asyncCh:  make(chan packet.Packet, replyBufferSize),
		notifyCh: make(chan []byte, notifyBufferSize),
		readDone: make(chan struct{}),
		caps:     newCapabilitySet(),
	}
	c.ackMode.Store(true)
	c.defaultTimeoutNs.Store(int64(defaultTimeout))
	return c
}

// Connect opens the transport and starts the reader goroutine.
func (c *Client) Connect(ctx context.Context, url string) error {
	if err := c.tr.Connect(ctx, url); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

// Disconnect tears down the transport and stops the reader goroutine.
func (c *Client) Disconnect() error {
	err := c.tr.Disconnect()
	c.markDead(gdberrors.ErrEOF)
	return err
}

// NotificationChannel exposes the %Stop (and future notification kinds)
// stream for the Async Event Thread to drain with vStopped.
func (c *Client) NotificationChannel() <-chan []byte { return c.notifyCh }

// AsyncChannel exposes stop replies that arrive while Mode is ModeAsync.
func (c *Client) AsyncChannel() <-chan packet.Packet { return c.asyncCh }

// Done is closed once the read loop observes a terminal transport error,
// letting a goroutine blocked on AsyncChannel also select on connection
// loss instead of waiting forever for a reply that will never arrive.
func (c *Client) Done() <-chan struct{} { return c.readDone }

// SetMode switches reply routing. The Async Event Thread calls
// SetMode(ModeAsync) immediately before handing off a continue packet, and
// SetMode(ModeSync) once a stop has been observed and delivered.
func (c *Client) SetMode(m Mode) { c.mode.Store(int32(m)) }

func (c *Client) currentMode() Mode { return Mode(c.mode.Load()) }

// markDead records a terminal transport error; all subsequent Send calls
// fail immediately without touching the transport, matching "EOF is
// terminal for the current connection" propagation policy.
func (c *Client) markDead(err error) {
	if c.dead.CompareAndSwap(false, true) {
		c.deadErr.Store(err)
		close(c.readDone)
	}
}

// IsDead reports whether the connection has seen a terminal transport
// error or a Disconnect. Connect does not clear this state: once dead, the
// Client stays dead and every later Send on it fails.
func (c *Client) IsDead() bool { return c.dead.Load() }

// DefaultTimeout returns the client's current default send timeout.
func (c *Client) DefaultTimeout() time.Duration {
	return time.Duration(c.defaultTimeoutNs.Load())
}

// ScopedTimeout temporarily widens the default timeout for a series of
// related requests, restoring the previous value when the returned func is
// called — a per-call override undone automatically when the scope ends.
// Callers are expected to `defer restore()`.
func (c *Client) ScopedTimeout(d time.Duration) (restore func()) {
	prev := c.defaultTimeoutNs.Swap(int64(d))
	return func() { c.defaultTimeoutNs.Store(prev) }
}

// Send issues payload and waits for the matching response, honoring
// opts.Timeout (falling back to the client default), resending the packet
// after each timeout for at most defaultMaxRetries attempts in all, and
// returning the reply's Packet.
func (c *Client) Send(ctx context.Context, payload []byte, opts Options) (packet.Packet, error) {
	if c.dead.Load() {
		if err, _ := c.deadErr.Load().(error); err != nil {
			return packet.Packet{}, err
		}
		return packet.Packet{}, gdberrors.ErrEOF
	}

	if !opts.SendAsync {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.DefaultTimeout()
	}

	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		frame := packet.Encode(payload)
		if err := c.tr.Write(ctx, frame); err != nil {
			return packet.Packet{}, gdberrors.Wrap(gdberrors.CodeIOError, err, "send failed")
		}
		c.metrics.PacketSent("command")

		deadline := time.Now().Add(timeout)
		reply, err := c.waitReply(ctx, deadline)
		if err == nil {
			if opts.ResponseKindHint == ResponseBinary && reply.Kind == packet.KindNormal {
				unescaped, uerr := packet.UnescapeBinary(reply.Payload)
				if uerr == nil {
					reply.Payload = unescaped
				}
			}
			c.metrics.PacketReceived(reply.Kind.String())
			return reply, nil
		}
		lastErr = err
		if gdberrors.CodeOf(err) == gdberrors.CodeTimedOut {
			// Soft failure: the client stays usable. Retry the send.
			c.metrics.Retransmit()
			continue
		}
		// Any other failure (EOF, malformed-beyond-resync) is terminal.
		return packet.Packet{}, err
	}
	return packet.Packet{}, lastErr
}

func (c *Client) waitReply(ctx context.Context, deadline time.Time) (packet.Packet, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	ch := c.replyCh
	if c.currentMode() == ModeAsync {
		ch = c.asyncCh
	}

	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		return packet.Packet{}, gdberrors.ErrTimedOut
	case <-ctx.Done():
		return packet.Packet{}, gdberrors.Wrap(gdberrors.CodeCancelled, ctx.Err(), "send cancelled")
	case <-c.readDone:
		if err, _ := c.deadErr.Load().(error); err != nil {
			return packet.Packet{}, err
		}
		return packet.Packet{}, gdberrors.ErrEOF
	}
}

// SendThenWaitConcat implements the qXfer streaming pattern: repeatedly
// send continuation packets (built by nextPacket, which receives the
// cumulative offset read so far) until the stub's reply indicates
// end-of-stream (a payload NOT prefixed with 'm', i.e. prefixed with 'l' or
// empty/OK), concatenating the 'm'/'l'-prefixed data bodies.
func (c *Client) SendThenWaitConcat(ctx context.Context, nextPacket func(offset int) []byte) ([]byte, error) {
	var out []byte
	offset := 0
	for {
		req := nextPacket(offset)
		reply, err := c.Send(ctx, req, Options{})
		if err != nil {
			return nil, err
		}
		if reply.Kind == packet.KindUnsupported {
			return nil, gdberrors.ErrUnsupported
		}
		if reply.Kind == packet.KindError {
			return nil, gdberrors.New(gdberrors.CodeStubError, "qXfer error %s", packet.FormatError(reply))
		}
		if len(reply.Payload) == 0 {
			return out, nil
		}
		marker := reply.Payload[0]
		body := reply.Payload[1:]
		out = append(out, body...)
		offset += len(body)
		if marker == 'l' {
			return out, nil
		}
		// marker == 'm': more data follows.
	}
}

// Interrupt sends the out-of-band 0x03 byte and waits up to
// defaultInterruptWait (or ctx's deadline, if sooner) for an asynchronous
// stop reply, reporting timed-out vs delivered.
func (c *Client) Interrupt(ctx context.Context) (packet.Packet, error) {
	if err := c.tr.Write(ctx, []byte{0x03}); err != nil {
		return packet.Packet{}, gdberrors.Wrap(gdberrors.CodeIOError, err, "interrupt send failed")
	}
	timer := time.NewTimer(defaultInterruptWait)
	defer timer.Stop()
	select {
	case p := <-c.asyncCh:
		return p, nil
	case <-timer.C:
		return packet.Packet{}, gdberrors.ErrTimedOut
	case <-ctx.Done():
		return packet.Packet{}, gdberrors.Wrap(gdberrors.CodeCancelled, ctx.Err(), "interrupt cancelled")
	case <-c.readDone:
		if err, _ := c.deadErr.Load().(error); err != nil {
			return packet.Packet{}, err
		}
		return packet.Packet{}, gdberrors.ErrEOF
	}
}

// readLoop owns the transport for reading: it accumulates bytes, frames
// them, verifies checksums (sending +/- per the ack protocol), and routes
// decoded packets to notifyCh, replyCh, or asyncCh.
func (c *Client) readLoop() {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	ctx := context.Background()

	for {
		n, err := c.tr.Read(ctx, tmp, time.Time{})
		if err != nil {
			if gdberrors.CodeOf(err) == gdberrors.CodeInterrupted {
				continue
			}
			c.markDead(err)
			return
		}
		buf = append(buf, tmp[:n]...)
		buf = c.drainFrames(buf)
	}
}

// drainFrames consumes as many complete ack bytes / "$...#cc" frames as
// present at the front of buf, returning the unconsumed remainder.
func (c *Client) drainFrames(buf []byte) []byte {
	for len(buf) > 0 {
		switch buf[0] {
		case '+', '-':
			// Ack/nak for our most recent send. The send/retry loop above
			// doesn't currently block on these explicitly (timeouts cover
			// a missing ack), so we just consume them.
			buf = buf[1:]
		case '$':
			hashIdx := indexByte(buf, '#')
			if hashIdx < 0 || len(buf) < hashIdx+3 {
				return buf // incomplete frame, wait for more bytes
			}
			frameEnd := hashIdx + 3
			frame := buf[:frameEnd]
			payload, derr := packet.DecodeFrame(frame)
			if derr != nil {
				if c.ackMode.Load() {
					_ = c.tr.Write(context.Background(), []byte{'-'})
				}
				buf = buf[frameEnd:]
				continue
			}
			if c.ackMode.Load() {
				_ = c.tr.Write(context.Background(), []byte{'+'})
			}
			expanded, eerr := packet.ExpandRLE(payload)
			if eerr != nil {
				buf = buf[frameEnd:]
				continue
			}
			p := packet.Classify(expanded)
			c.dispatch(p)
			buf = buf[frameEnd:]
		default:
			// Resync: drop bytes until the next plausible frame start.
			buf = buf[1:]
		}
	}
	return buf
}

func (c *Client) dispatch(p packet.Packet) {
	if p.Kind == packet.KindNotification {
		select {
		case c.notifyCh <- p.Payload:
		default:
			logger.Warn("notification channel full, dropping %Stop payload")
		}
		return
	}
	ch := c.replyCh
	if c.currentMode() == ModeAsync {
		ch = c.asyncCh
	}
	ch <- p
}

// SendNoWait frames and writes payload without waiting for a reply. The
// Async Event Thread uses this for continue packets (`c`/`C`/`s`/`S`/
// `vCont`): the reply is a stop that may arrive arbitrarily far in the
// future, and the thread needs to report "packet handed to the wire"
// before that stop is observed, not block until it arrives.
func (c *Client) SendNoWait(ctx context.Context, payload []byte) error {
	if c.dead.Load() {
		if err, _ := c.deadErr.Load().(error); err != nil {
			return err
		}
		return gdberrors.ErrEOF
	}
	frame := packet.Encode(payload)
	if err := c.tr.Write(ctx, frame); err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "send failed")
	}
	c.metrics.PacketSent("command")
	return nil
}

// InterruptNoWait writes the out-of-band 0x03 byte without waiting for the
// resulting stop reply. Used by the Async Event Thread, which is already
// waiting on AsyncChannel for the continue it issued; a second reader of
// that channel (Interrupt's own wait) would race it for the single stop
// reply the interrupt provokes.
func (c *Client) InterruptNoWait(ctx context.Context) error {
	if err := c.tr.Write(ctx, []byte{0x03}); err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "interrupt send failed")
	}
	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
