// Package transport provides the byte-level connect/read/write primitive
// the Remote Client frames packets over. It knows nothing about "$...#cc"
// envelopes; it only moves bytes and makes blocking reads interruptible
// from another goroutine via context cancellation, the same deadline-driven
// style used elsewhere in this repo for raw net.Conn reads.
package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// Transport is the narrow byte-level contract C9/C3 build on. Connect
// accepts an address string whose form is up to the concrete transport;
// TCP dials it as a plain "host:port".
type Transport interface {
	Connect(ctx context.Context, url string) error
	Disconnect() error

	// Read blocks until data is available, the deadline elapses, or ctx is
	// cancelled (which must interrupt a pending read from another
	// goroutine — e.g. the caller issuing an out-of-band interrupt).
	Read(ctx context.Context, buf []byte, deadline time.Time) (int, error)

	Write(ctx context.Context, data []byte) error
}

// TCP is a Transport backed by net.Conn (TCP or any net.Conn-compatible
// dialer), matching exclusion of serial/named-pipe specifics while
// still providing one concrete, usable transport.
type TCP struct {
	conn net.Conn
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCP constructs a TCP transport using net.Dialer.DialContext.
func NewTCP() *TCP {
	d := &net.Dialer{}
	return &TCP{dial: d.DialContext}
}

func (t *TCP) Connect(ctx context.Context, addr string) error {
	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeConnectFailed, err, "connect to %s", addr)
	}
	t.conn = conn
	return nil
}

func (t *TCP) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "disconnect")
	}
	return nil
}

func (t *TCP) Read(ctx context.Context, buf []byte, deadline time.Time) (int, error) {
	if t.conn == nil {
		return 0, gdberrors.New(gdberrors.CodeIOError, "not connected")
	}
	if !deadline.IsZero() {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := t.conn.Read(buf)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		// Force the blocked Read to return by expiring the read deadline;
		// the goroutine above then observes an error and exits, its send
		// landing in the buffered done channel, so the caller is not
		// blocked on it.
		_ = t.conn.SetReadDeadline(time.Now())
		return 0, gdberrors.Wrap(gdberrors.CodeInterrupted, ctx.Err(), "read interrupted")
	case r := <-done:
		if r.err != nil {
			if r.err == io.EOF {
				return r.n, gdberrors.Wrap(gdberrors.CodeEOF, r.err, "connection closed")
			}
			if ne, ok := r.err.(net.Error); ok && ne.Timeout() {
				return r.n, gdberrors.Wrap(gdberrors.CodeTimedOut, r.err, "read timed out")
			}
			return r.n, gdberrors.Wrap(gdberrors.CodeIOError, r.err, "read failed")
		}
		return r.n, nil
	}
}

func (t *TCP) Write(ctx context.Context, data []byte) error {
	if t.conn == nil {
		return gdberrors.New(gdberrors.CodeIOError, "not connected")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := t.conn.Write(data); err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "write failed")
	}
	return nil
}
