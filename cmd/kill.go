package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"meshd/pkg/config"
	"meshd/pkg/pidfile"
)

var killCmd = &cobra.Command{
	Use:   "kill [SIGNAL]",
	Short: "Send a signal to the running daemon",
	Long:  "Send SIGNAL (default TERM) to the running daemon. A stale lock file is removed.",
	Args:  cobra.MaximumNArgs(1),
	Run:   execKillCmd,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func execKillCmd(cmd *cobra.Command, args []string) {
	sig := unix.SIGTERM
	if len(args) == 1 {
		s, err := parseSignal(args[0])
		if err != nil {
			fatalf("ERROR: %v", err)
		}
		sig = s
	}

	signalDaemon(sig)
}

// signalDaemon 向锁文件记录的进程发送信号，失败时以 1 退出
func signalDaemon(sig unix.Signal) {
	if code := killDaemon(config.GetConfig().PidFile, daemonName(), sig, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// killDaemon 返回命令的退出码
//
// 锁文件记录的进程已经不存在时删除锁文件，这不算错误。
func killDaemon(path, name string, sig unix.Signal, stderr io.Writer) int {
	if _, err := pidfile.Read(path); err != nil {
		_, _ = fmt.Fprintf(stderr, "No other %s is running.\n", name)
		return 1
	}

	stale, err := pidfile.ProbeStale(path, sig)
	if stale {
		_, _ = fmt.Fprintf(stderr, "The %s is no longer running. Removing stale lock file.\n", name)
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	return 0
}

// parseSignal 支持数字、HUP 和 SIGHUP 三种写法
func parseSignal(s string) (unix.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || unix.SignalName(unix.Signal(n)) == "" {
			return 0, fmt.Errorf("invalid signal %s", s)
		}
		return unix.Signal(n), nil
	}

	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}

	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %s", s)
	}

	return sig, nil
}
