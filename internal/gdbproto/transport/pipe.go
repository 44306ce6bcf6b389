package transport

import (
	"context"
	"sync"
	"time"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// Pipe is an in-memory Transport used by tests to script a stub's byte
// stream without a real socket. Feed queues bytes the "stub" will hand
// back on Read calls (in order); WrittenTo captures everything the client
// writes.
type Pipe struct {
	mu        sync.Mutex
	toClient  []byte
	connected bool

	// WrittenTo records every Write call's payload in order.
	WrittenTo [][]byte

	// OnWrite, if set, is invoked synchronously from Write and may push
	// more bytes onto the read side (e.g. simulating a stub auto-reply).
	OnWrite func(p *Pipe, data []byte)
}

// NewPipe returns a disconnected Pipe.
func NewPipe() *Pipe { return &Pipe{} }

func (p *Pipe) Connect(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *Pipe) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// Feed appends bytes the next Read calls will return, simulating stub
// output arriving on the wire.
func (p *Pipe) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toClient = append(p.toClient, data...)
}

func (p *Pipe) Read(ctx context.Context, buf []byte, deadline time.Time) (int, error) {
	for {
		p.mu.Lock()
		if !p.connected {
			p.mu.Unlock()
			return 0, gdberrors.New(gdberrors.CodeIOError, "not connected")
		}
		if len(p.toClient) > 0 {
			n := copy(buf, p.toClient)
			p.toClient = p.toClient[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, gdberrors.Wrap(gdberrors.CodeInterrupted, ctx.Err(), "read interrupted")
		case <-time.After(time.Millisecond):
			if !deadline.IsZero() && time.Now().After(deadline) {
				return 0, gdberrors.New(gdberrors.CodeTimedOut, "read timed out")
			}
		}
	}
}

func (p *Pipe) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return gdberrors.New(gdberrors.CodeIOError, "not connected")
	}
	cp := append([]byte(nil), data...)
	p.WrittenTo = append(p.WrittenTo, cp)
	onWrite := p.OnWrite
	p.mu.Unlock()

	if onWrite != nil {
		onWrite(p, cp)
	}
	return nil
}

// CloseWithEOF marks the pipe as remotely closed: subsequent Read and
// Write calls fail at once with a "not connected" I/O error, even if fed
// bytes are still buffered.
func (p *Pipe) CloseWithEOF() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

var _ Transport = (*Pipe)(nil)
