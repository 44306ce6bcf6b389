package target

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/transport"
	"github.com/mark-grimes/gdbremote-core/internal/logger"
)

// probeWarmupSem bounds how many capability-probe goroutines may be
// in flight at once across every Target, independent of the Remote
// Client's own per-connection send serialization.
var probeWarmupSem = semaphore.NewWeighted(4)

// allBits is every event-kind bit, used to hijack a broadcaster so it
// captures everything for the duration of a launch/attach.
const allBits eventbus.Bits = ^eventbus.Bits(0)

// Memperm is the requested protection for an allocate() call.
type Memperm int

const (
	PermRead Memperm = 1 << iota
	PermWrite
	PermExecute
)

func (p Memperm) string() string {
	var b strings.Builder
	if p&PermRead != 0 {
		b.WriteByte('r')
	}
	if p&PermWrite != 0 {
		b.WriteByte('w')
	}
	if p&PermExecute != 0 {
		b.WriteByte('x')
	}
	return b.String()
}

// allocatedRegion records how one allocate() call was satisfied, so
// deallocate() can undo it the right way.
type allocatedRegion struct {
	addr       uint64
	size       uint64
	viaMMapAPI bool
}

// connectTransport dials tr at url on the Target's existing Remote Client
// and performs the handshake common to every entry point that establishes
// a fresh connection: qSupported negotiation, no-ack mode, and a vCont?
// probe.
func (t *Target) connectTransport(ctx context.Context, tr transport.Transport, url string) error {
	if tr != nil {
		t.client = client.New(tr, t.clientMetrics)
	}
	if err := t.client.Connect(ctx, url); err != nil {
		return gdberrors.Wrap(gdberrors.CodeConnectFailed, err, "connect to %s", url)
	}
	if err := t.client.ProbeSupported(ctx); err != nil {
		return gdberrors.Wrap(gdberrors.CodeConnectFailed, err, "qSupported negotiation")
	}

	// No-ack negotiation and the vCont? probe are independent follow-up
	// probes once qSupported has landed; run them concurrently, bounded by
	// probeWarmupSem, and fold failures into warnings rather than aborting
	// the connection.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := probeWarmupSem.Acquire(gctx, 1); err != nil {
			return nil
		}
		defer probeWarmupSem.Release(1)
		if err := t.client.NegotiateNoAck(gctx); err != nil {
			logger.Warn("QStartNoAckMode negotiation failed, continuing with ack mode", logger.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := probeWarmupSem.Acquire(gctx, 1); err != nil {
			return nil
		}
		defer probeWarmupSem.Release(1)
		if _, err := t.async.ensureVCont(gctx); err != nil {
			logger.Warn("vCont? probe failed, falling back to legacy c/s packets", logger.Err(err))
		}
		return nil
	})
	_ = g.Wait()

	t.Process.SetState(StateConnected)
	return nil
}

// Launch establishes a connection (unless the process is already alive or
// the Target is already connected) and starts info's program under the
// stub: env, working dir and the disable-ASLR flag, then an "A"-style argv
// packet, expecting an initial stop or exit reply. FileActions,
// DisableStdio, LaunchInSeparateGroup, LaunchInTTY and StopAtEntry are not
// sent to the stub.
func (t *Target) Launch(ctx context.Context, tr transport.Transport, url string, info LaunchInfo) error {
	if !t.Process.State().IsAlive() && t.Process.State() != StateConnected {
		if err := t.connectTransport(ctx, tr, url); err != nil {
			return err
		}
	}

	t.Process.SetState(StateLaunching)

	if info.HijackListener != nil {
		t.Broadcaster.Hijack(info.HijackListener, allBits)
		defer t.Broadcaster.Unhijack()
	}

	for _, kv := range encodedEnv(info.Environment) {
		if _, err := t.client.Send(ctx, []byte("QEnvironment:"+kv), client.Options{}); err != nil {
			return gdberrors.Wrap(gdberrors.CodeIOError, err, "QEnvironment")
		}
	}
	if info.WorkingDir != "" {
		if _, err := t.client.Send(ctx, []byte("QSetWorkingDir:"+hexEncodeString(info.WorkingDir)), client.Options{}); err != nil {
			return gdberrors.Wrap(gdberrors.CodeIOError, err, "QSetWorkingDir")
		}
	}
	if info.DisableASLR {
		if _, err := t.client.Send(ctx, []byte("QSetDisableASLR:1"), client.Options{}); err != nil {
			return gdberrors.Wrap(gdberrors.CodeIOError, err, "QSetDisableASLR")
		}
	}

	argv := info.argv()
	var b strings.Builder
	for i, a := range argv {
		if i > 0 {
			b.WriteByte(',')
		}
		enc := hexEncodeString(a)
		fmt.Fprintf(&b, "%x,%x,%s", len(enc), i, enc)
	}
	reply, err := t.client.Send(ctx, []byte("A"+b.String()), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "send launch argv")
	}
	if reply.Kind == packet.KindError {
		if info.DetachOnError {
			_ = t.client.Disconnect()
		}
		return gdberrors.New(gdberrors.CodeInvalidProcess, "launch failed: %s", packet.FormatError(reply))
	}

	return t.ingestInitialStop(ctx)
}

// AttachPID attaches to an already-running process by pid.
func (t *Target) AttachPID(ctx context.Context, tr transport.Transport, url string, pid uint64, info AttachInfo) error {
	if err := t.resetForAttach(ctx, tr, url); err != nil {
		return err
	}
	reply, err := t.client.Send(ctx, []byte(fmt.Sprintf("vAttach;%x", pid)), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "vAttach")
	}
	if reply.Kind == packet.KindError {
		return gdberrors.New(gdberrors.CodeInvalidProcess, "attach pid %d failed: %s", pid, packet.FormatError(reply))
	}
	t.Process.SetPID(pid)
	return t.ingestInitialStop(ctx)
}

// AttachName attaches by executable name, optionally waiting for the
// process to be launched.
func (t *Target) AttachName(ctx context.Context, tr transport.Transport, url string, name string, waitForLaunch, ignoreExisting bool, info AttachInfo) error {
	if err := t.resetForAttach(ctx, tr, url); err != nil {
		return err
	}
	cmd := "vAttachName;" + hexEncodeString(name)
	switch {
	case waitForLaunch && ignoreExisting:
		cmd = "vAttachOrWait;" + hexEncodeString(name)
	case waitForLaunch:
		cmd = "vAttachWait;" + hexEncodeString(name)
	}
	reply, err := t.client.Send(ctx, []byte(cmd), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "attach by name")
	}
	if reply.Kind == packet.KindError {
		return gdberrors.New(gdberrors.CodeInvalidProcess, "attach name %q failed: %s", name, packet.FormatError(reply))
	}
	return t.ingestInitialStop(ctx)
}

func (t *Target) resetForAttach(ctx context.Context, tr transport.Transport, url string) error {
	t.Threads.Reset()
	t.MemCache.Invalidate()
	t.Process.SetState(StateAttaching)
	if tr != nil {
		return t.connectTransport(ctx, tr, url)
	}
	return nil
}

// ConnectRemote connects to url without launching or attaching: if the
// stub is already tracking a process it reports an initial stop, which is
// ingested; otherwise the Target settles into StateConnected.
func (t *Target) ConnectRemote(ctx context.Context, tr transport.Transport, url string) error {
	if err := t.connectTransport(ctx, tr, url); err != nil {
		return err
	}
	reply, err := t.client.Send(ctx, []byte("?"), client.Options{})
	if err != nil || reply.Kind == packet.KindUnsupported {
		return nil
	}
	if len(reply.Payload) == 0 {
		return nil
	}
	return t.deliverStop(ctx, reply.Payload)
}

// ingestInitialStop issues "?" to fetch the stub's current stop status
// after launch/attach and processes it like any other stop.
func (t *Target) ingestInitialStop(ctx context.Context) error {
	reply, err := t.client.Send(ctx, []byte("?"), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "initial stop query")
	}
	if len(reply.Payload) == 0 {
		t.Breaks.SetProcessAlive(true)
		t.Process.SetState(StateStopped)
		return nil
	}
	return t.deliverStop(ctx, reply.Payload)
}

func (t *Target) deliverStop(ctx context.Context, payload []byte) error {
	t.Breaks.SetProcessAlive(true)
	if err := t.RebuildRegisterInfo(ctx, nil); err != nil {
		logger.Warn("initial register info build failed", logger.Err(err))
	}
	return t.async.processStopPayload(ctx, payload)
}

// Resume computes a resume plan covering every known thread (deferring to
// BuildResumePlan's "continue by default" rule) and drives it through the
// Async Event Thread.
func (t *Target) Resume(ctx context.Context, overridden map[uint64]ThreadResumeState) error {
	if !t.Process.State().IsAlive() {
		return gdberrors.New(gdberrors.CodeWrongProcessState, "resume: process not alive (%s)", t.Process.State())
	}
	plan := BuildResumePlan(t.Threads, overridden)
	return t.async.resume(ctx, plan)
}

// Halt stops a running inferior: in Attaching state it simply disconnects
// (the attach itself is abandoned); otherwise it sends the out-of-band
// interrupt and waits for the resulting stop.
func (t *Target) Halt(ctx context.Context) error {
	if t.Process.State() == StateAttaching {
		return t.client.Disconnect()
	}
	return t.async.halt(ctx)
}

// Detach sends "D" (optionally "D;1" to leave the inferior stopped) and
// transitions to Detached.
func (t *Target) Detach(ctx context.Context, keepStopped bool) error {
	cmd := "D"
	if keepStopped {
		cmd = "D;1"
	}
	reply, err := t.client.Send(ctx, []byte(cmd), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "detach")
	}
	if !reply.OK() {
		return gdberrors.New(gdberrors.CodeStubError, "detach: %s", packet.FormatError(reply))
	}
	t.Breaks.SetProcessAlive(false)
	t.Process.SetState(StateDetached)
	return nil
}

// PreDestroyRecovery is a pluggable hook destroy() runs, when non-nil and
// the process is stopped at a breakpoint/exception, before issuing kill —
// generalized design note rather than gated on a hardcoded stub
// name. A typical implementation disables all breakpoint sites, suspends
// uninteresting threads, and resumes once.
type PreDestroyRecovery func(ctx context.Context, t *Target) error

// Destroy runs recovery once (if set and not already used this session)
// and sends "k" to kill the inferior.
func (t *Target) Destroy(ctx context.Context, recovery PreDestroyRecovery) error {
	if recovery != nil && !t.recoveryUsed && t.Process.State() == StateStopped {
		t.recoveryUsed = true
		if err := recovery(ctx, t); err != nil {
			logger.Warn("pre-destroy recovery failed, killing anyway", logger.Err(err))
		}
	}
	if _, err := t.client.Send(ctx, []byte("k"), client.Options{}); err != nil {
		logger.Warn("kill packet send failed", logger.Err(err))
	}
	if err := t.Breaks.OnProcessExit(ctx); err != nil {
		logger.Error("breakpoint manager OnProcessExit failed", logger.Err(err))
	}
	t.Threads.MarkAllExited()
	t.Process.SetState(StateExited)
	err := t.client.Disconnect()
	t.async.shutdown()
	return err
}

// Allocate requests size bytes with perm protection via "_M", falling
// back to nothing if unsupported. Synthesizing an mmap call through a
// function-call runtime is out of scope without a JIT/expression evaluator.
func (t *Target) Allocate(ctx context.Context, size uint64, perm Memperm) (uint64, error) {
	reply, err := t.client.Send(ctx, []byte(fmt.Sprintf("_M%x,%s", size, perm.string())), client.Options{})
	if err != nil {
		return 0, gdberrors.Wrap(gdberrors.CodeAllocateFailed, err, "_M")
	}
	if reply.Kind == packet.KindError || reply.Kind == packet.KindUnsupported {
		return 0, gdberrors.New(gdberrors.CodeAllocateFailed, "_M: %s", packet.FormatError(reply))
	}
	addr, err := parseHexU64(string(reply.Payload))
	if err != nil {
		return 0, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse _M reply")
	}
	t.mu.Lock()
	t.allocations[addr] = allocatedRegion{addr: addr, size: size}
	t.mu.Unlock()
	return addr, nil
}

// Deallocate releases a region previously returned by Allocate via "_m".
func (t *Target) Deallocate(ctx context.Context, addr uint64) error {
	t.mu.Lock()
	_, ok := t.allocations[addr]
	delete(t.allocations, addr)
	t.mu.Unlock()
	if !ok {
		return gdberrors.New(gdberrors.CodeInvalidAddress, "deallocate: unknown region 0x%x", addr)
	}
	reply, err := t.client.Send(ctx, []byte(fmt.Sprintf("_m%x", addr)), client.Options{})
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeAllocateFailed, err, "_m")
	}
	if !reply.OK() {
		return gdberrors.New(gdberrors.CodeAllocateFailed, "_m: %s", packet.FormatError(reply))
	}
	return nil
}

func encodedEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, hexEncodeString(k+"="+v))
	}
	return out
}

func hexEncodeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&b, "%02x", s[i])
	}
	return b.String()
}

func parseHexU64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, err
	}
	return v, nil
}

