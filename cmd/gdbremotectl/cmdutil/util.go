// Package cmdutil provides shared flag state and output helpers for
// gdbremotectl commands.
package cmdutil

import (
	"fmt"
	"io"

	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
	"github.com/mark-grimes/gdbremote-core/pkg/target"
)

// Flags stores the global flag values synced by the root command's
// PersistentPreRun.
var Flags = &GlobalFlags{}

// GlobalFlags holds the flag values shared across every subcommand.
type GlobalFlags struct {
	Addr       string
	Arch       string
	ConfigPath string
	Output     string
	Verbose    bool
}

// GetOutputFormat returns the raw --output flag value.
func GetOutputFormat() string {
	return Flags.Output
}

// IsJSON reports whether the current output format is "json".
func IsJSON() bool {
	return Flags.Output == "json"
}

// PrintStopEvent renders one parsed stop event to w as plain text lines;
// it does not consult the current output format.
func PrintStopEvent(w io.Writer, ev *stopreply.StopEvent) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case stopreply.KindExited:
		fmt.Fprintf(w, "exited: code=%d\n", ev.ExitCode)
	case stopreply.KindTerminated:
		fmt.Fprintf(w, "terminated: signal=%d %s\n", ev.ExitSignal, ev.ExitDesc)
	case stopreply.KindOutput:
		fmt.Fprintf(w, "output: %s\n", string(ev.Output))
	default:
		for _, ts := range ev.Threads {
			fmt.Fprintf(w, "thread %d stopped: reason=%s signal=%d", ts.TID, ts.Reason, ts.Signal)
			if ts.HasPC {
				fmt.Fprintf(w, " pc=0x%x", ts.PC)
			}
			if ts.Reason == stopreply.ReasonWatchpoint && ts.HasWatch {
				fmt.Fprintf(w, " watch=0x%x", ts.WatchAddr)
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintProcessStatus prints the target's current process state and thread
// table to w.
func PrintProcessStatus(w io.Writer, tg *target.Target) {
	state := tg.Process.State()
	pid, hasPID := tg.Process.PID()
	if hasPID {
		fmt.Fprintf(w, "process: state=%s pid=%d\n", state, pid)
	} else {
		fmt.Fprintf(w, "process: state=%s\n", state)
	}

	threads := tg.Threads.All()
	if len(threads) == 0 {
		fmt.Fprintln(w, "threads: none")
		return
	}
	fmt.Fprintln(w, "threads:")
	for _, th := range threads {
		pc, hasPC := th.PC()
		reason, _ := th.StopReason()
		if hasPC {
			fmt.Fprintf(w, "  %d  %-8s pc=0x%x  %s\n", th.ID(), th.State(), pc, reason)
		} else {
			fmt.Fprintf(w, "  %d  %-8s %s\n", th.ID(), th.State(), reason)
		}
	}
}
