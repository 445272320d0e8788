package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"meshd/pkg/client"
	"meshd/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Run:   execStatusCmd,
}

func init() {
	setupCommandPreRun(statusCmd, requireDaemonRunning)
	rootCmd.AddCommand(statusCmd)
}

func execStatusCmd(cmd *cobra.Command, args []string) {
	st, err := client.Status(config.GetConfig().Socket)
	if err != nil {
		fatalf("ERROR: %v", err)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() {
		_ = enc.Close()
	}()

	if err := enc.Encode(st); err != nil {
		fatalf("ERROR: %v", err)
	}
}
