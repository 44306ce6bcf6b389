// Package threads implements the Thread Registry: materialization and
// refresh of per-thread state from parsed stop-replies, keyed by thread id
// and scoped to the process's current stop.
package threads

import (
	"sync"

	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
)

// State is a thread's run state as last known to the registry.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Thread is one process thread's materialized state.
type Thread struct {
	mu sync.RWMutex

	id    uint64
	state State

	pc      uint64
	hasPC   bool
	core    int
	hasCore bool
	name    string

	stopReason      stopreply.Reason
	stopDescription string

	queue *stopreply.QueueInfo

	// registers caches the raw expedited register bytes from the most
	// recent stop, keyed by register number as sent on the wire.
	registers map[int][]byte

	stopID uint64 // generation counter of the stop that last updated this thread

	// lastResumeWasStep records whether the most recent resume directive
	// issued for this thread was a single-step, consulted by the
	// stop-reply translator to disambiguate a bare SIGTRAP.
	lastResumeWasStep bool
}

func newThread(id uint64) *Thread {
	return &Thread{id: id, state: StateUnknown, registers: make(map[int][]byte)}
}

func (t *Thread) ID() uint64 { return t.id }

func (t *Thread) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Thread) PC() (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pc, t.hasPC
}

func (t *Thread) Core() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.core, t.hasCore
}

func (t *Thread) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *Thread) StopReason() (stopreply.Reason, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopReason, t.stopDescription
}

func (t *Thread) Queue() *stopreply.QueueInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.queue
}

// Register returns the cached expedited register bytes from the thread's
// last stop, if the stop reply included it.
func (t *Thread) Register(num int) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	raw, ok := t.registers[num]
	return raw, ok
}

// StopID returns the registry generation at which this thread was last
// updated, used to detect threads that went stale across a resume.
func (t *Thread) StopID() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopID
}

func (t *Thread) applyStop(ts stopreply.ThreadStop, stopID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateStopped
	t.stopReason = ts.Reason
	t.stopDescription = ts.Description
	t.stopID = stopID

	if ts.HasPC {
		t.pc, t.hasPC = ts.PC, true
	}
	if ts.HasCore {
		t.core, t.hasCore = ts.Core, true
	}
	if ts.Name != "" {
		t.name = ts.Name
	}
	if ts.Queue != nil {
		t.queue = ts.Queue
	}
	if len(ts.ExpeditedRegisters) > 0 {
		for num, raw := range ts.ExpeditedRegisters {
			t.registers[num] = raw
		}
	}
}

// SetLastResumeStepping records whether the directive this thread was just
// resumed with was a single-step.
func (t *Thread) SetLastResumeStepping(stepping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastResumeWasStep = stepping
}

// WasStepping reports whether this thread's last resume directive was a
// single-step; implements stopreply.ResumeLookup via the Registry.
func (t *Thread) WasStepping() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastResumeWasStep
}

func (t *Thread) markRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateRunning
}

func (t *Thread) markExited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateExited
}
