package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"meshd/pkg/client"
	"meshd/pkg/config"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Run:   execReloadCmd,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge unreachable nodes",
	Run:   execPurgeCmd,
}

func init() {
	setupCommandPreRun(reloadCmd, requireDaemonRunning)
	setupCommandPreRun(purgeCmd, requireDaemonRunning)
	rootCmd.AddCommand(reloadCmd, purgeCmd)
}

func execReloadCmd(cmd *cobra.Command, args []string) {
	msg, err := client.Reload(config.GetConfig().Socket)
	if err != nil {
		fatalf("ERROR: %v", err)
	}

	fmt.Println(msg)
}

func execPurgeCmd(cmd *cobra.Command, args []string) {
	msg, err := client.Purge(config.GetConfig().Socket)
	if err != nil {
		fatalf("ERROR: %v", err)
	}

	fmt.Println(msg)
}
