package target

import (
	"sync"

	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
)

// State is the Process state machine.
type State int

const (
	StateInvalid State = iota
	StateUnloaded
	StateConnected
	StateAttaching
	StateLaunching
	StateStopped
	StateRunning
	StateStepping
	StateCrashed
	StateDetached
	StateExited
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateUnloaded:
		return "unloaded"
	case StateConnected:
		return "connected"
	case StateAttaching:
		return "attaching"
	case StateLaunching:
		return "launching"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStepping:
		return "stepping"
	case StateCrashed:
		return "crashed"
	case StateDetached:
		return "detached"
	case StateExited:
		return "exited"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// IsAlive reports whether the inferior is still a live process from the
// stub's point of view (can be resumed, read from, signalled).
func (s State) IsAlive() bool {
	switch s {
	case StateStopped, StateRunning, StateStepping, StateCrashed, StateSuspended:
		return true
	default:
		return false
	}
}

// StateTransition is the payload broadcast on BitProcessStateChanged.
type StateTransition struct {
	From State
	To   State
}

// Process tracks the single inferior's lifecycle state, exit status, and
// pid, and publishes every transition on the Target's broadcaster.
type Process struct {
	mu sync.RWMutex

	pid      uint64
	hasPID   bool
	state    State
	exitCode int
	exitDesc string

	broadcaster *eventbus.Broadcaster
	busMgr      *eventbus.BroadcasterManager
}

// NewProcess returns a Process in StateUnloaded, publishing transitions
// through bus/busMgr.
func NewProcess(bus *eventbus.Broadcaster, busMgr *eventbus.BroadcasterManager) *Process {
	return &Process{
		state:       StateUnloaded,
		broadcaster: bus,
		busMgr:      busMgr,
	}
}

// State returns the current state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// PID returns the inferior pid and whether one has been assigned yet.
func (p *Process) PID() (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid, p.hasPID
}

// SetPID records the inferior pid once known (after launch/attach reply).
func (p *Process) SetPID(pid uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
	p.hasPID = true
}

// ExitStatus returns the exit code/description recorded by SetExited.
func (p *Process) ExitStatus() (code int, description string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, p.exitDesc
}

// SetState transitions to to and broadcasts BitProcessStateChanged unless
// to equals the current state.
func (p *Process) SetState(to State) {
	p.mu.Lock()
	from := p.state
	if from == to {
		p.mu.Unlock()
		return
	}
	p.state = to
	p.mu.Unlock()

	if p.broadcaster != nil {
		p.broadcaster.Broadcast(p.busMgr, eventbus.BitProcessStateChanged, StateTransition{From: from, To: to})
	}
}

// SetExited records the exit status and transitions to StateExited.
func (p *Process) SetExited(code int, description string) {
	p.mu.Lock()
	p.exitCode = code
	p.exitDesc = description
	p.mu.Unlock()
	p.SetState(StateExited)
}
