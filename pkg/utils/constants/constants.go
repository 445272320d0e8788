// Package constants
package constants

import (
	"fmt"
	"os"
	"time"
)

const (
	DefaultDaemonName = "meshd"
	DefaultNetName    = ""

	// 调试级别，与 debug_level 配置项的取值一致
	DebugNothing     = 0
	DebugConnections = 1
	DebugStatus      = 2
	DebugProtocol    = 3
	DebugMeta        = 4
	DebugTraffic     = 5
	DebugScaryThings = 10

	// SIGINT 临时切换到的调试级别
	DebugElevated = DebugTraffic

	DefaultRestartDelay        = 5 * time.Second
	DefaultMaintenanceInterval = 10 * time.Second
)

var MeshdHome = getHome()

var DaemonLogFilePath = getDaemonPath("log")
var DaemonPidFilePath = getDaemonPath("pid")
var DaemonSockFilePath = getDaemonPath("sock")

func getHome() string {
	return fmt.Sprintf("%s/.meshd", os.Getenv("HOME"))
}

func getDaemonPath(suffix string) string {
	return fmt.Sprintf("%s/%s.%s", MeshdHome, DefaultDaemonName, suffix)
}
