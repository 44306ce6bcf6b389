package target

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mark-grimes/gdbremote-core/internal/breakpoint"
	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/modules"
	"github.com/mark-grimes/gdbremote-core/internal/regsinfo"
	"github.com/mark-grimes/gdbremote-core/internal/threads"
	"github.com/mark-grimes/gdbremote-core/pkg/metrics"
	"github.com/mark-grimes/gdbremote-core/pkg/settings"
)

// Target is the Target Orchestrator: the process lifecycle, thread
// registry, module list, breakpoint/watchpoint manager, register info, and
// the event fan-out every caller observes, wired to one Remote Client.
type Target struct {
	Settings *settings.Settings

	client *client.Client

	Process  *Process
	Threads  *threads.Registry
	Modules  *modules.Manager
	Breaks   *breakpoint.Manager
	MemCache *MemCache
	Hooks    *StopHookTable

	RegInfo *regsinfo.Info

	Broadcaster *eventbus.Broadcaster
	BusManager  *eventbus.BroadcasterManager

	arch string

	async *asyncEventThread

	binaryReadUnsupported atomic.Bool

	clientMetrics client.Metrics

	mu           sync.Mutex
	allocations  map[uint64]allocatedRegion
	recoveryUsed bool
}

// New constructs a Target bound to an already-dialed Remote Client. arch is
// the architecture name used to pick a trap opcode and ABI table until
// regsinfo.Build replaces it with a real Info (see RebuildRegisterInfo).
func New(c *client.Client, st *settings.Settings, arch string) *Target {
	if st == nil {
		st = settings.Default()
	}

	busMgr := eventbus.NewBroadcasterManager()
	bus := eventbus.NewBroadcaster("target")

	t := &Target{
		Settings:    st,
		client:      c,
		Process:     NewProcess(bus, busMgr),
		Threads:     threads.NewRegistry(),
		MemCache:    NewMemCache(),
		Hooks:       NewStopHookTable(),
		Broadcaster: bus,
		BusManager:  busMgr,
		arch:        arch,
		allocations: make(map[uint64]allocatedRegion),
	}

	t.Breaks = breakpoint.NewManager(t, t, arch, metrics.NewBreakpointMetrics())
	t.Modules = modules.NewManager(t.Breaks, bus, busMgr)
	t.async = newAsyncEventThread(t)

	return t
}

// Client exposes the underlying Remote Client for callers (the CLI,
// tests) that need to issue raw requests outside the orchestrator's named
// operations.
func (t *Target) Client() *client.Client { return t.client }

// Arch returns the architecture name the Target was constructed with.
func (t *Target) Arch() string { return t.arch }

// Send satisfies breakpoint.Stub, forwarding to the Remote Client.
func (t *Target) Send(ctx context.Context, payload []byte, opts client.Options) (packet.Packet, error) {
	return t.client.Send(ctx, payload, opts)
}

// Capability satisfies breakpoint.Stub.
func (t *Target) Capability(name string) client.CapState {
	return t.client.Capability(name)
}

// ReadMemory satisfies breakpoint.MemoryAccess and pkg/target's public
// read_memory operation: consult the L1 cache first, then prefer the
// binary "x" command over hex "m" until the stub proves it doesn't
// support "x", clamping every request to the stub's advertised
// packet-size ceiling.
func (t *Target) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "read_memory: non-positive size %d", size)
	}
	if cached, ok := t.MemCache.Lookup(addr, size); ok {
		return cached, nil
	}

	maxSize := t.client.MaxMemorySize()
	out := make([]byte, 0, size)
	for remaining := size; remaining > 0; {
		chunk := remaining
		if chunk > maxSize {
			chunk = maxSize
		}
		off := size - remaining
		decoded, err := t.readMemoryChunk(ctx, addr+uint64(off), chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
		remaining -= len(decoded)
		if len(decoded) == 0 {
			break
		}
	}

	t.MemCache.Fill(addr, out)
	return out, nil
}

func (t *Target) readMemoryChunk(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if !t.binaryReadUnsupported.Load() {
		req := []byte(fmt.Sprintf("x%x,%x", addr, size))
		reply, err := t.client.Send(ctx, req, client.Options{ResponseKindHint: client.ResponseBinary})
		if err != nil {
			return nil, gdberrors.Wrap(gdberrors.CodeMemoryReadWriteFailed, err, "read_memory at 0x%x", addr)
		}
		switch reply.Kind {
		case packet.KindUnsupported:
			t.binaryReadUnsupported.Store(true)
		case packet.KindError:
			return nil, gdberrors.New(gdberrors.CodeMemoryReadWriteFailed, "read_memory at 0x%x: %s", addr, packet.FormatError(reply))
		default:
			// reply.Payload is already RLE-expanded and, because the
			// request carried ResponseKindHint: ResponseBinary, already
			// binary-unescaped by Send itself.
			return reply.Payload, nil
		}
	}

	req := []byte(fmt.Sprintf("m%x,%x", addr, size))
	reply, err := t.client.Send(ctx, req, client.Options{})
	if err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMemoryReadWriteFailed, err, "read_memory at 0x%x", addr)
	}
	if reply.Kind == packet.KindError || reply.Kind == packet.KindUnsupported {
		return nil, gdberrors.New(gdberrors.CodeMemoryReadWriteFailed, "read_memory at 0x%x: %s", addr, packet.FormatError(reply))
	}
	decoded, err := hex.DecodeString(string(reply.Payload))
	if err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "decode hex memory reply")
	}
	return decoded, nil
}

// WriteMemory satisfies breakpoint.MemoryAccess and pkg/target's public
// write_memory operation: issue "M<addr>,<len>:<hex>" clamped to the same
// packet-size ceiling as reads, invalidating any cached overlap.
func (t *Target) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	maxSize := t.client.MaxMemorySize()
	for off := 0; off < len(data); {
		chunk := len(data) - off
		if chunk > maxSize {
			chunk = maxSize
		}
		part := data[off : off+chunk]
		req := []byte(fmt.Sprintf("M%x,%x:%s", addr+uint64(off), len(part), hex.EncodeToString(part)))
		reply, err := t.client.Send(ctx, req, client.Options{})
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMemoryReadWriteFailed, err, "write_memory at 0x%x", addr+uint64(off))
		}
		if !reply.OK() {
			return gdberrors.New(gdberrors.CodeMemoryReadWriteFailed, "write_memory at 0x%x: %s", addr+uint64(off), packet.FormatError(reply))
		}
		off += chunk
	}
	t.MemCache.InvalidateRange(addr, len(data))
	return nil
}

// RebuildRegisterInfo replaces RegInfo, called after connect and after
// every exec.
func (t *Target) RebuildRegisterInfo(ctx context.Context, targetXML []byte) error {
	probe := func(n int) (map[string]string, bool, error) {
		reply, err := t.client.Send(ctx, []byte(fmt.Sprintf("qRegisterInfo%x", n)), client.Options{})
		if err != nil {
			return nil, false, err
		}
		if reply.Kind == packet.KindUnsupported {
			return nil, false, nil
		}
		if reply.Kind == packet.KindError {
			return nil, false, gdberrors.New(gdberrors.CodeStubError, "qRegisterInfo%x: %s", n, packet.FormatError(reply))
		}
		kv := make(map[string]string)
		for _, field := range splitSemicolons(reply.Payload) {
			eq := indexOf(field, '=')
			if eq < 0 {
				continue
			}
			kv[field[:eq]] = field[eq+1:]
		}
		return kv, true, nil
	}

	info, err := regsinfo.Build(t.arch, nil, targetXML, probe)
	if err != nil {
		return err
	}
	t.RegInfo = info
	return nil
}

func splitSemicolons(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == ';' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
