package supervisor

import (
	"meshd/pkg/logger"
	"meshd/pkg/utils/constants"
)

// DebugLevel 返回当前调试级别
func (sv *Supervisor) DebugLevel() int {
	sv.debugMu.Lock()
	defer sv.debugMu.Unlock()

	return sv.debugLevel
}

func (sv *Supervisor) debugState() (int, bool) {
	sv.debugMu.Lock()
	defer sv.debugMu.Unlock()

	return sv.debugLevel, sv.savedDebug != -1
}

// ToggleDebug 切换临时调试级别
//
// 第一次调用保存当前级别并提升到 constants.DebugElevated，
// 再次调用恢复保存的级别。连续两次调用之后级别与调用前完全相同。
// 返回切换之后的级别。
func (sv *Supervisor) ToggleDebug() int {
	sv.debugMu.Lock()

	var restored bool
	if sv.savedDebug != -1 {
		sv.debugLevel = sv.savedDebug
		sv.savedDebug = -1
		restored = true
	} else {
		sv.savedDebug = sv.debugLevel
		sv.debugLevel = constants.DebugElevated
	}

	level, saved := sv.debugLevel, sv.savedDebug
	sv.debugMu.Unlock()

	logger.SetDebugLevel(level)

	if restored {
		sv.logger.Infof("Reverting to old debug level (%d)", level)
	} else {
		sv.logger.Infof("Temporarily setting debug level to %d. Kill me with SIGINT again to go back to level %d.",
			level, saved)
	}

	return level
}

// setDebugLevel 配置重载时更新基础级别，处于临时提升状态时只更新保存的级别
func (sv *Supervisor) setDebugLevel(level int) {
	sv.debugMu.Lock()
	defer sv.debugMu.Unlock()

	if sv.savedDebug != -1 {
		sv.savedDebug = level
		return
	}

	sv.debugLevel = level
	logger.SetDebugLevel(level)
}
