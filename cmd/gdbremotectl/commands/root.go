// Package commands implements the gdbremotectl CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/cmdutil"
	"github.com/mark-grimes/gdbremote-core/internal/logger"
	"github.com/mark-grimes/gdbremote-core/pkg/metrics"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gdbremotectl",
	Short: "gdbremotectl drives a gdb-remote stub from the command line",
	Long: `gdbremotectl is a thin command-line client over the gdb-remote
Target Orchestrator. It launches or attaches to an inferior through a
stub, prints the stops it reports, and resumes it, for exercising the
core end to end without a full interactive debugger.

Use "gdbremotectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.Addr, _ = cmd.Flags().GetString("addr")
		cmdutil.Flags.Arch, _ = cmd.Flags().GetString("arch")
		cmdutil.Flags.ConfigPath, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")

		level := "info"
		if cmdutil.Flags.Verbose {
			level = "debug"
		}
		_ = logger.Init(logger.Config{Level: level, Format: "text", Output: "stderr"})
		metrics.InitRegistry()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("addr", "localhost:1234", "stub address (host:port)")
	rootCmd.PersistentFlags().String("arch", "x86_64", "target architecture")
	rootCmd.PersistentFlags().String("config", "", "path to a gdbremotectl settings file")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table|json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(connectCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gdbremotectl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("gdbremotectl %s (%s)\n", Version, Commit)
		return nil
	},
}
