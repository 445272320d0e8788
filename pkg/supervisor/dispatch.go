package supervisor

import (
	"golang.org/x/sys/unix"

	"meshd/pkg/utils/constants"
)

// dispatch 按角色处理一个信号，由分发协程串行调用
func (sv *Supervisor) dispatch(sig unix.Signal) {
	role := sv.table.Role(sig)

	switch role {
	case RoleTerminate:
		sv.logger.Infof("Got %s signal", signalName(sig))
		sv.finish(Outcome{Kind: OutcomeShutdown, Status: 0})
	case RoleFault:
		sv.onFault(sig)
	case RoleDoubleFault:
		sv.onDoubleFault(describeSignal(sig))
	case RoleHangup:
		sv.pendingHangup.Store(true)
		sv.notify()
	case RoleAlarm:
		sv.pendingAlarm.Store(true)
		sv.notify()
	case RolePurge:
		sv.pendingPurge.Store(true)
		sv.notify()
	case RoleDebugToggle:
		sv.ToggleDebug()
	case RoleDumpConnections:
		sv.safeCall("dump connections", sv.network.DumpConnections)
	case RoleDumpAll:
		sv.safeCall("dump device stats", sv.network.DumpDeviceStats)
		sv.safeCall("dump nodes", sv.network.DumpNodes)
		sv.safeCall("dump edges", sv.network.DumpEdges)
		sv.safeCall("dump subnets", sv.network.DumpSubnets)
	case RoleIgnoreNoisy:
		if sv.DebugLevel() >= constants.DebugScaryThings {
			sv.logger.Debugf("Ignored signal %s", describeSignal(sig))
		}
	case RoleIgnoreDefault:
	case RoleUnexpected:
		sv.logger.Warnf("Got unexpected signal %s", describeSignal(sig))
	default:
		// RoleDefault 的信号没有交给 signal.Notify，正常情况下不会到达这里
		sv.logger.Debugf("Signal %s has no handler", describeSignal(sig))
	}
}

// safeCall 执行一次尽力而为的诊断调用，panic 只记录不传播
func (sv *Supervisor) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sv.logger.Errorf("Failed to %s: %v", what, r)
		}
	}()

	fn()
}
