// Command gdbremotectl is a thin CLI over the gdb-remote Target
// Orchestrator: connect to a stub, launch or attach an inferior, and
// print the stops it reports.
package main

import (
	"fmt"
	"os"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.Version = version
	commands.Commit = commit

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
