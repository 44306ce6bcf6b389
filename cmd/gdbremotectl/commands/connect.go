package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/cmdutil"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a stub that already has an inferior stopped and follow its stops",
	RunE: func(cmd *cobra.Command, args []string) error {
		tg, tr, err := dialTarget()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := tg.ConnectRemote(ctx, tr, cmdutil.Flags.Addr); err != nil {
			return err
		}

		return followStops(ctx, tg)
	},
}
