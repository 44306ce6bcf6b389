package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/cmdutil"
	"github.com/mark-grimes/gdbremote-core/pkg/target"
)

var attachFlags struct {
	pid            uint64
	name           string
	waitForLaunch  bool
	ignoreExisting bool
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to a running process through the stub and follow its stops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if attachFlags.pid == 0 && attachFlags.name == "" {
			return fmt.Errorf("attach requires either --pid or --name")
		}

		tg, tr, err := dialTarget()
		if err != nil {
			return err
		}

		info := target.AttachInfo{Arch: cmdutil.Flags.Arch}
		ctx := context.Background()

		if attachFlags.pid != 0 {
			err = tg.AttachPID(ctx, tr, cmdutil.Flags.Addr, attachFlags.pid, info)
		} else {
			err = tg.AttachName(ctx, tr, cmdutil.Flags.Addr, attachFlags.name, attachFlags.waitForLaunch, attachFlags.ignoreExisting, info)
		}
		if err != nil {
			return err
		}

		return followStops(ctx, tg)
	},
}

func init() {
	attachCmd.Flags().Uint64Var(&attachFlags.pid, "pid", 0, "pid to attach to")
	attachCmd.Flags().StringVar(&attachFlags.name, "name", "", "process name to attach to")
	attachCmd.Flags().BoolVar(&attachFlags.waitForLaunch, "waitfor", false, "wait for a process with this name to launch")
	attachCmd.Flags().BoolVar(&attachFlags.ignoreExisting, "ignore-existing", false, "ignore already-running processes with this name")
}
