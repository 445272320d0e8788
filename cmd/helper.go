package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"meshd/pkg/config"
	"meshd/pkg/pidfile"
)

// setupCommandPreRun 注册命令自己的检查，在全局 PersistentPreRun 之后执行
func setupCommandPreRun(cmd *cobra.Command, check func()) {
	cmd.PreRun = func(c *cobra.Command, args []string) {
		check()
	}
}

// isDaemonRunning 锁文件记录的进程是否存活
func isDaemonRunning() bool {
	_, ok := pidfile.CheckExisting(config.GetConfig().PidFile)
	return ok
}

// requireDaemonRunning 检查守护进程是否运行
//
// 功能：
//  1. 检查锁文件记录的进程
//  2. 如果未运行，打印错误并退出程序
//
// 使用场景：
//
//	在需要守护进程运行的命令中（reload/status/purge/dump）调用
func requireDaemonRunning() {
	if !isDaemonRunning() {
		log.Fatalf("No other %s is running.", daemonName())
	}
}

func daemonName() string {
	return config.GetConfig().Identity()
}
