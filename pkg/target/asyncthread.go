package target

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/logger"
	"github.com/mark-grimes/gdbremote-core/internal/modules"
	"github.com/mark-grimes/gdbremote-core/internal/regsinfo"
	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
)

// asyncState is the Async Event Thread's own state machine: it runs on a
// single goroutine and is the only thing that ever sends a continue/step
// packet or consumes the stub's unsolicited stop replies.
type asyncState int32

const (
	asyncIdle asyncState = iota
	asyncResuming
	asyncRunning
	asyncDraining
	asyncTerminating
)

// asyncEventThread owns the Remote Client while the inferior is running:
// it flips the client into ModeAsync before sending a continue/step
// packet, blocks on the client's async/notification channels for the
// resulting stop, reconciles module/thread/breakpoint state, and publishes
// the public stop event — mirroring the single-goroutine-owns-the-
// connection pattern used by stub-driven debuggers.
type asyncEventThread struct {
	t *Target

	// wg tracks the background goroutines this thread owns, so shutdown can
	// fan them back in instead of leaking them past Destroy/Detach.
	wg errgroup.Group

	mu    sync.Mutex
	cond  *sync.Cond
	state atomic.Int32

	// lastErr is the terminal error (nil on success) of the most recently
	// finished resume, read by resume()/halt() after waking on cond, so an
	// interrupt's outstanding wait returns without error once the stop
	// lands.
	lastErr error

	vcont     client.VContActions
	haveVCont bool
}

func newAsyncEventThread(t *Target) *asyncEventThread {
	a := &asyncEventThread{t: t}
	a.cond = sync.NewCond(&a.mu)
	a.state.Store(int32(asyncIdle))
	a.wg.Go(func() error {
		a.notificationLoop()
		return nil
	})
	return a
}

// shutdown blocks until the notification-loop goroutine has exited
// (triggered by the client dying or its notification channel closing),
// the fan-in counterpart to starting it with wg.Go above.
func (a *asyncEventThread) shutdown() {
	_ = a.wg.Wait()
}

// notificationLoop drains "%Stop" out-of-band notifications for the
// lifetime of the connection — independent of resume()/halt(), since
// non-stop mode delivers stops whether or not the caller is waiting on
// one. It runs until the client's notification channel closes.
func (a *asyncEventThread) notificationLoop() {
	for {
		select {
		case payload, ok := <-a.t.client.NotificationChannel():
			if !ok {
				return
			}
			a.drainNonStop(context.Background(), payload)
		case <-a.t.client.Done():
			return
		}
	}
}

// drainNonStop implements the vStopped drain loop: first holds the "%Stop"
// notification's own payload; send "vStopped" repeatedly, queuing each
// non-OK reply, until the stub answers "OK", then deliver every queued
// stop in arrival order. A malformed reply is logged and the drain
// continues rather than aborting.
func (a *asyncEventThread) drainNonStop(ctx context.Context, first []byte) {
	pending := [][]byte{first}
	for {
		reply, err := a.t.client.Send(ctx, []byte("vStopped"), client.Options{SendAsync: true})
		if err != nil {
			logger.Warn("vStopped send failed, abandoning drain", logger.Err(err))
			return
		}
		if reply.OK() {
			break
		}
		if reply.Kind != packet.KindNormal {
			logger.Warn("vStopped malformed reply, continuing drain")
			continue
		}
		pending = append(pending, reply.Payload)
	}

	for _, payload := range pending {
		if err := a.processStopPayload(ctx, payload); err != nil {
			logger.Warn("failed to process drained non-stop event", logger.Err(err))
		}
	}
}

func (a *asyncEventThread) State() asyncState {
	return asyncState(a.state.Load())
}

func (a *asyncEventThread) setState(s asyncState) {
	a.state.Store(int32(s))
}

// ensureVCont probes vCont? once and memoizes the result for BuildPacket.
func (a *asyncEventThread) ensureVCont(ctx context.Context) (client.VContActions, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.haveVCont {
		return a.vcont, nil
	}
	actions, err := a.t.client.ProbeVCont(ctx)
	if err != nil {
		return client.VContActions{}, err
	}
	a.vcont, a.haveVCont = actions, true
	return actions, nil
}

// resume sends plan's resume packet and blocks until the resulting stop
// (or exit) has been fully processed and published, or ctx is cancelled.
func (a *asyncEventThread) resume(ctx context.Context, plan ResumePlan) error {
	if a.State() != asyncIdle {
		return gdberrors.New(gdberrors.CodeWrongProcessState, "resume: async thread busy")
	}

	for _, s := range plan.States {
		a.t.Threads.SetLastResumeState(s.TID, s.Kind == ResumeStep)
	}

	caps, err := a.ensureVCont(ctx)
	if err != nil {
		return err
	}
	pkt, err := plan.BuildPacket(caps)
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeMalformed, err, "build resume packet")
	}

	a.t.MemCache.Invalidate()
	a.setState(asyncResuming)
	a.t.Process.SetState(StateRunning)

	a.t.client.SetMode(client.ModeAsync)
	if err := a.t.client.SendNoWait(ctx, pkt); err != nil {
		a.setState(asyncIdle)
		a.t.client.SetMode(client.ModeSync)
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "send resume packet")
	}
	a.setState(asyncRunning)

	go a.waitForStop(ctx)

	return a.waitUntilIdle(ctx)
}

// waitForStop blocks for the single next stop reply (or transport death)
// following a resume, processes it, and wakes anyone blocked on a.cond.
func (a *asyncEventThread) waitForStop(ctx context.Context) {
	var err error
	select {
	case pkt, ok := <-a.t.client.AsyncChannel():
		if !ok {
			err = gdberrors.New(gdberrors.CodeEOF, "async channel closed")
			break
		}
		a.t.client.SetMode(client.ModeSync)
		err = a.processStopPayload(ctx, pkt.Payload)
	case <-a.t.client.Done():
		a.t.client.SetMode(client.ModeSync)
		err = gdberrors.New(gdberrors.CodeEOF, "transport closed while running")
	case <-ctx.Done():
		err = ctx.Err()
	}
	a.finishResume(err)
}

func (a *asyncEventThread) finishResume(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	a.setState(asyncIdle)
	a.cond.Broadcast()
}

// waitUntilIdle blocks until the async thread returns to asyncIdle (or ctx
// is cancelled), returning the error the resume/halt in flight finished
// with.
func (a *asyncEventThread) waitUntilIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.mu.Lock()
		for a.State() != asyncIdle {
			a.cond.Wait()
		}
		a.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		a.mu.Lock()
		err := a.lastErr
		a.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// halt sends the out-of-band interrupt byte and waits for the stop it
// provokes, returning once the async thread has returned
// to idle.
func (a *asyncEventThread) halt(ctx context.Context) error {
	if a.State() == asyncIdle {
		return nil // already stopped
	}
	if err := a.t.client.InterruptNoWait(ctx); err != nil {
		return gdberrors.Wrap(gdberrors.CodeIOError, err, "send interrupt")
	}
	return a.waitUntilIdle(ctx)
}

// processStopPayload parses a stop-reply payload, updates the Thread
// Registry, runs module reconciliation on a library-change notice, resets
// state on exec, and publishes the public stop event.
func (a *asyncEventThread) processStopPayload(ctx context.Context, payload []byte) error {
	ev, err := stopreply.Parse(payload, a.t.arch, a.t.Threads)
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse stop reply")
	}
	return a.processStopEvent(ctx, ev)
}

func (a *asyncEventThread) processStopEvent(ctx context.Context, ev *stopreply.StopEvent) error {
	switch ev.Kind {
	case stopreply.KindExited, stopreply.KindTerminated:
		a.t.Threads.MarkAllExited()
		a.t.Process.SetExited(int(ev.ExitCode), ev.ExitDesc)
		if err := a.t.Breaks.OnProcessExit(ctx); err != nil {
			logger.Error("breakpoint manager OnProcessExit failed", logger.Err(err))
		}
		return nil
	case stopreply.KindOutput:
		if a.t.Broadcaster != nil {
			a.t.Broadcaster.Broadcast(a.t.BusManager, eventbus.BitProcessStdoutAvailable, ev.Output)
		}
		return nil
	}

	a.fillExpeditedPCs(ev)
	a.supplementThreadsInfo(ctx, ev)
	a.reconcileStopReasons(ctx, ev)

	stopID := a.t.Threads.ApplyStop(ev)
	for addr, data := range ev.MemoryFills {
		a.t.MemCache.Fill(addr, data)
	}

	if ev.Library {
		if err := a.reconcileModules(ctx, stopID); err != nil {
			logger.Error("module reconciliation after stop failed", logger.Err(err))
		}
	}

	for _, ts := range ev.Threads {
		if ts.Reason == stopreply.ReasonExec {
			a.onExec(ctx)
			break
		}
	}

	a.t.Process.SetState(StateStopped)
	if a.t.Broadcaster != nil {
		a.t.Broadcaster.Broadcast(a.t.BusManager, eventbus.BitProcessStateChanged, ev)
	}
	return nil
}

// fillExpeditedPCs maps any thread's expedited register payload to a PC
// value using the generic "pc" register's native number in RegInfo, for
// stubs that expedite registers by number rather than reporting "pc:"
// directly (stopreply.Parse's own PC detection is a deliberate stub; this
// is the seam its doc comment calls out for callers with register-info
// context).
func (a *asyncEventThread) fillExpeditedPCs(ev *stopreply.StopEvent) {
	if a.t.RegInfo == nil {
		return
	}
	pcReg, ok := a.t.RegInfo.ByNumber(regsinfo.NumberingGeneric, 0)
	if !ok {
		return
	}
	all := a.t.RegInfo.All()
	nativeNum := -1
	for i, r := range all {
		if r == pcReg {
			nativeNum = i
			break
		}
	}
	if nativeNum < 0 {
		return
	}
	for i := range ev.Threads {
		ts := &ev.Threads[i]
		if ts.HasPC {
			continue
		}
		if raw, ok := ts.ExpeditedRegisters[nativeNum]; ok {
			ts.PC = decodeLittleEndian(raw)
			ts.HasPC = true
			if ev.ThreadPCs == nil {
				ev.ThreadPCs = make(map[uint64]uint64)
			}
			ev.ThreadPCs[ts.TID] = ts.PC
		}
	}
}

func decodeLittleEndian(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// supplementThreadsInfo fills in full per-thread detail (registers, PC,
// name) for every thread the primary stop reply only named by id via its
// "threads:"/"thread-pcs:" keys, using a single "jThreadsInfo" round trip
// instead of one qThreadStopInfo request per thread, when the stub
// advertises the capability.
func (a *asyncEventThread) supplementThreadsInfo(ctx context.Context, ev *stopreply.StopEvent) {
	if ev.Kind != stopreply.KindThreadStop {
		return
	}
	if a.t.client.Capability("jThreadsInfo") != client.CapSupported {
		return
	}

	reply, err := a.t.client.Send(ctx, []byte("jThreadsInfo"), client.Options{})
	if err != nil || reply.Kind != packet.KindNormal {
		return
	}

	info, err := stopreply.ParseThreadsInfo(reply.Payload, a.t.arch, a.t.Threads)
	if err != nil {
		logger.Warn("failed to parse jThreadsInfo reply", logger.Err(err))
		return
	}

	known := make(map[uint64]bool, len(ev.Threads))
	for _, ts := range ev.Threads {
		known[ts.TID] = true
	}
	for _, ts := range info.Threads {
		if known[ts.TID] {
			continue
		}
		ev.Threads = append(ev.Threads, ts)
		known[ts.TID] = true
	}
	for addr, data := range info.MemoryFills {
		if _, ok := ev.MemoryFills[addr]; !ok {
			ev.MemoryFills[addr] = data
		}
	}
}

// reconcileStopReasons re-validates every thread's provisional stop reason
// against the Breakpoint Manager's installed sites, now that PCs are known:
// a "breakpoint" reason is only honored if a site is installed at the
// thread's PC and valid for this thread (its ThreadFilter, if any, names
// it), otherwise it is downgraded to a bare trap; a "trace" reason whose PC
// lands on a valid site is promoted to a breakpoint hit instead of staying
// a single-step. A "watchpoint" reason is mapped back to the specific
// Watchpoint id that owns the hit address, with its hit count and
// before/after value recorded.
func (a *asyncEventThread) reconcileStopReasons(ctx context.Context, ev *stopreply.StopEvent) {
	for i := range ev.Threads {
		ts := &ev.Threads[i]
		switch ts.Reason {
		case stopreply.ReasonBreakpoint:
			if !ts.HasPC {
				continue
			}
			if _, ok := a.t.Breaks.RecordBreakpointHit(ts.PC, ts.TID); !ok {
				ts.Reason = stopreply.ReasonTrap
			}
		case stopreply.ReasonTrace:
			if !ts.HasPC {
				continue
			}
			if _, ok := a.t.Breaks.RecordBreakpointHit(ts.PC, ts.TID); ok {
				ts.Reason = stopreply.ReasonBreakpoint
			}
		case stopreply.ReasonWatchpoint:
			if wp, ok := a.t.Breaks.RecordWatchHit(ctx, ts.WatchAddr); ok {
				ts.WatchID = wp.ID.String()
			}
		}
	}
}

// reconcileModules runs the three discovery mechanisms in order, using
// whichever one the stub actually supports (memoized as a capability).
func (a *asyncEventThread) reconcileModules(ctx context.Context, stopID uint64) error {
	discovered, err := a.discoverModules(ctx)
	if err != nil {
		return err
	}
	return a.t.Modules.Reconcile(ctx, stopID, discovered)
}

// qXferReadPacket builds one "qXfer:<object>:read:<annex>:<offset>,<length>"
// continuation request, the wire shape SendThenWaitConcat's nextPacket
// callback is expected to produce.
func qXferReadPacket(object string, offset, length int) []byte {
	return []byte(fmt.Sprintf("qXfer:%s:read::%x,%x", object, offset, length))
}

func (a *asyncEventThread) discoverModules(ctx context.Context) ([]modules.DiscoveredModule, error) {
	chunkSize := a.t.client.MaxMemorySize()

	if a.t.client.Capability("qXfer:libraries-svr4:read") == client.CapSupported {
		if doc, err := a.t.client.SendThenWaitConcat(ctx, func(offset int) []byte {
			return qXferReadPacket("libraries-svr4", offset, chunkSize)
		}); err == nil {
			return modules.ParseLibrariesSVR4(doc)
		}
	}
	if a.t.client.Capability("qXfer:libraries:read") == client.CapSupported {
		if doc, err := a.t.client.SendThenWaitConcat(ctx, func(offset int) []byte {
			return qXferReadPacket("libraries", offset, chunkSize)
		}); err == nil {
			return modules.ParseLibrariesGeneric(doc)
		}
	}
	reply, err := a.t.client.Send(ctx, []byte("jGetLoadedDynamicLibrariesInfos:{}"), client.Options{})
	if err != nil {
		return nil, err
	}
	if reply.Kind != packet.KindNormal {
		return nil, nil
	}
	return modules.ParseAppleStructured(reply.Payload)
}

// onExec clears thread/breakpoint/register state so the next resume
// operates on the freshly exec'd image.
func (a *asyncEventThread) onExec(ctx context.Context) {
	a.t.Threads.Reset()
	a.t.MemCache.Invalidate()
	if err := a.t.Breaks.OnExec(ctx); err != nil {
		logger.Error("breakpoint manager OnExec failed", logger.Err(err))
	}
	if err := a.t.Modules.ReconcileExec(ctx); err != nil {
		logger.Error("module reconciliation on exec failed", logger.Err(err))
	}
	if err := a.t.RebuildRegisterInfo(ctx, nil); err != nil {
		logger.Error("register info rebuild on exec failed", logger.Err(err))
	}
}
