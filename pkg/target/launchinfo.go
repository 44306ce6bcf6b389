// Package target implements the Target Orchestrator and the Async
// Event Thread: the public lifecycle operations (launch, attach,
// connect, resume, halt, detach, destroy, memory access) layered over the
// Remote Client, Thread Registry, Breakpoint/Watchpoint Manager, and
// Module List, plus the single goroutine that owns the wire for
// continue/stop/exit transitions.
package target

import "github.com/mark-grimes/gdbremote-core/internal/eventbus"

// StdioStream names one of the inferior's three standard streams.
type StdioStream int

const (
	StreamStdin StdioStream = iota
	StreamStdout
	StreamStderr
)

// FileActionKind is what a LaunchInfo does with one of the inferior's
// standard streams before exec, "File actions" list.
type FileActionKind int

const (
	ActionInherit FileActionKind = iota
	ActionOpen
	ActionUsePTY
	ActionClose
)

// OpenMode is the access mode for an ActionOpen file action.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
	OpenAppend
)

// FileAction describes what to do with one stdio stream before the
// inferior execs.
type FileAction struct {
	Kind FileActionKind
	Path string
	Mode OpenMode
}

// LaunchInfo is the launch configuration: arguments, environment, working
// directory, architecture, stdio wiring, and launch flags.
type LaunchInfo struct {
	Arg0        string
	Arguments   []string
	Environment map[string]string
	WorkingDir  string
	Arch        string

	FileActions map[StdioStream]FileAction

	DisableASLR           bool
	DisableStdio          bool
	DetachOnError         bool
	LaunchInSeparateGroup bool
	LaunchInTTY           bool
	StopAtEntry           bool

	// HijackListener, if set, captures process events for the duration of
	// the launch instead of the public broadcaster — used to serialize
	// "stop after launch" observation.
	HijackListener *eventbus.Listener
}

// AttachInfo is the attach configuration object: everything attach_pid /
// attach_name needs beyond the pid or name argument itself.
type AttachInfo struct {
	Arch           string
	HijackListener *eventbus.Listener
}

// argv renders Arg0 + Arguments as the full argv slice passed in the
// launch "A" / "vRun" packet.
func (li LaunchInfo) argv() []string {
	if li.Arg0 == "" {
		return li.Arguments
	}
	out := make([]string, 0, len(li.Arguments)+1)
	out = append(out, li.Arg0)
	out = append(out, li.Arguments...)
	return out
}
