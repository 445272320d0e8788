package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"meshd/pkg/config"
	"meshd/pkg/logger"
	"meshd/pkg/mesh"
	"meshd/pkg/supervisor"
	"meshd/pkg/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Start the daemon. Without -D the process detaches from the terminal,
writes its PID to the lock file and logs to syslog or the configured log file.`,
	Run: execStartCmd,
}

func init() {
	startCmd.Flags().BoolVarP(&config.ForegroundFlag, "no-detach", "D", false, "Don't fork and detach")
	startCmd.Flags().IntVarP(&config.DebugLevelFlag, "debug", "d", -1, "Increase debug level to LEVEL")
	startCmd.Flags().StringVar(&config.LogFileFlag, "logfile", "", "Write log entries to a logfile")

	setupCommandPreRun(startCmd, func() {
		dir := filepath.Dir(config.GetConfig().PidFile)
		if err := os.MkdirAll(dir, 0750); err != nil {
			fatalf("ERROR: %v", err)
		}
		if err := utils.CheckPerm(dir); err != nil {
			fatalf("ERROR: %v", err)
		}
	})

	rootCmd.AddCommand(startCmd)
}

func execStartCmd(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	network := mesh.New(cfg)
	sv := supervisor.NewSupervisor(cfg, network)

	parent, err := sv.Start()
	if err != nil {
		fatalf("ERROR: %s: %v", cfg.Identity(), err)
	}

	if parent {
		os.Exit(0)
	}

	log := logger.Logging("meshd")
	if err := network.Listen(); err != nil {
		log.Error(err)
	}
	network.RetryConnections()

	out := sv.Run(context.Background())

	if out.Kind == supervisor.OutcomeRestart {
		if err := supervisor.Reexec(); err != nil {
			fatalf("ERROR: cannot re-execute %s: %v", os.Args[0], err)
		}
	}

	os.Exit(out.Status)
}

func fatalf(format string, a ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
