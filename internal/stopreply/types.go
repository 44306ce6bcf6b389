// Package stopreply implements the Stop-Reply State Machine: single-pass
// parsing of "T"/"S"/"W"/"X"/"O" payloads into a structured ThreadStop,
// including expedited registers, memory-cache fills, thread lists, and
// per-thread stop metadata.
package stopreply

// QueueKind classifies a libdispatch queue's concurrency model.
type QueueKind int

const (
	QueueUnknown QueueKind = iota
	QueueSerial
	QueueConcurrent
)

// QueueInfo is the optional libdispatch queue metadata piggy-backed on a
// per-thread stop.
type QueueInfo struct {
	Name       string
	Kind       QueueKind
	SerialNum  uint64
	QueueAddr  uint64
	HasAddr    bool
}

// Reason classifies why a thread stopped, after translation.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTrap
	ReasonBreakpoint
	ReasonTrace // single-step
	ReasonWatchpoint
	ReasonSignal
	ReasonException
	ReasonExec
)

func (r Reason) String() string {
	switch r {
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonTrace:
		return "trace"
	case ReasonWatchpoint:
		return "watchpoint"
	case ReasonSignal:
		return "signal"
	case ReasonException:
		return "exception"
	case ReasonExec:
		return "exec"
	default:
		return "none"
	}
}

// ThreadStop is the structured per-thread stop the parser produces.
type ThreadStop struct {
	TID         uint64
	Signal      int
	Reason      Reason
	Description string

	// Mach exception payload, when present.
	ExcType uint64
	ExcData []uint64

	// DispatchQAddr is the raw qaddr/dispatch_queue_t hex value, when
	// present.
	DispatchQAddr    uint64
	HasDispatchQAddr bool

	Queue *QueueInfo

	Name string

	// ExpeditedRegisters maps register number (as sent, two hex digits on
	// the wire) to its raw value bytes.
	ExpeditedRegisters map[int][]byte

	PC    uint64
	HasPC bool

	Core    int
	HasCore bool

	// Watchpoint hit info: address and optionally a distinct hit address
	// (MIPS reports both; translation matches on hit address first on
	// MIPS-family targets, else the requested address).
	WatchAddr    uint64
	HasWatch     bool
	WatchKind    WatchKind
	HitAddr      uint64
	HasHitAddr   bool

	// WatchID is the owning Watchpoint's id, filled in by the caller once it
	// has mapped WatchAddr back to a specific installed watchpoint; empty
	// until then.
	WatchID string
}

// ResumeLookup answers whether a thread's most recently issued resume
// directive was a single-step, the only state translateReason needs to
// disambiguate a bare SIGTRAP with no explicit "reason:" key into a trace
// stop versus a plain signal. A nil ResumeLookup (or one that reports false
// for every thread) falls back to reporting bare SIGTRAP as a signal.
type ResumeLookup interface {
	WasStepping(tid uint64) bool
}

// WatchKind distinguishes which of watch/rwatch/awatch fired.
type WatchKind int

const (
	WatchNone WatchKind = iota
	WatchWrite
	WatchRead
	WatchAccess
)

// StopEvent is the full parse result for one stop-reply packet: either a
// set of per-thread stops (T/S), a process exit (W/X), or an output
// fragment (O).
type StopEvent struct {
	Kind Kind

	// T/S fields.
	Threads   []ThreadStop
	AllTIDs   []uint64 // "threads:" key, full TID list
	ThreadPCs map[uint64]uint64
	Library   bool // "library:" key present — modules changed

	// Memory cache fills from "memory:<addr>=<hex>" keys.
	MemoryFills map[uint64][]byte

	// W/X fields.
	ExitCode   byte
	ExitSignal byte
	ExitDesc   string

	// O field.
	Output []byte
}

// Kind classifies which stop-reply grammar production matched.
type Kind int

const (
	KindThreadStop Kind = iota
	KindExited
	KindTerminated
	KindOutput
)
