package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/cmdutil"
	"github.com/mark-grimes/gdbremote-core/pkg/target"
)

var launchFlags struct {
	stopAtEntry  bool
	disableASLR  bool
	disableStdio bool
	workingDir   string
}

var launchCmd = &cobra.Command{
	Use:   "launch -- <program> [args...]",
	Short: "Launch a program under the stub and follow its stops",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tg, tr, err := dialTarget()
		if err != nil {
			return err
		}

		info := target.LaunchInfo{
			Arg0:          args[0],
			Arguments:     args[1:],
			WorkingDir:    launchFlags.workingDir,
			Arch:          cmdutil.Flags.Arch,
			DisableASLR:   launchFlags.disableASLR,
			DisableStdio:  launchFlags.disableStdio,
			StopAtEntry:   launchFlags.stopAtEntry,
			DetachOnError: true,
		}

		ctx := context.Background()
		if err := tg.Launch(ctx, tr, cmdutil.Flags.Addr, info); err != nil {
			return err
		}

		return followStops(ctx, tg)
	},
}

func init() {
	launchCmd.Flags().BoolVar(&launchFlags.stopAtEntry, "stop-at-entry", false, "stop at the inferior's entry point")
	launchCmd.Flags().BoolVar(&launchFlags.disableASLR, "disable-aslr", false, "disable address space layout randomization")
	launchCmd.Flags().BoolVar(&launchFlags.disableStdio, "disable-stdio", false, "do not wire the inferior's stdio")
	launchCmd.Flags().StringVar(&launchFlags.workingDir, "chdir", "", "working directory for the inferior")
	launchCmd.Flags().SetInterspersed(false)
}
