package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var dumpCmd = &cobra.Command{
	Use:       "dump [connections|all]",
	Short:     "Dump the daemon state to its log",
	Long:      "Ask the running daemon to dump its connection list (SIGUSR1) or devices, nodes, edges and subnets (SIGUSR2) to its log.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"connections", "all"},
	Run:       execDumpCmd,
}

func init() {
	setupCommandPreRun(dumpCmd, requireDaemonRunning)
	rootCmd.AddCommand(dumpCmd)
}

func execDumpCmd(cmd *cobra.Command, args []string) {
	sig := unix.SIGUSR1
	if len(args) == 1 && args[0] == "all" {
		sig = unix.SIGUSR2
	}

	signalDaemon(sig)
}
