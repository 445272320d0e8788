package supervisor

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"meshd/pkg/codec"
	"meshd/pkg/pidfile"
)

// 故障状态机：Normal -> FaultOnce -> (Restarted | Dead)
const (
	faultNormal int32 = iota
	faultOnce
	faultRestarted
	faultDead
)

var faultStates = map[int32]codec.FaultState{
	faultNormal:    codec.FaultNormal,
	faultOnce:      codec.FaultOnce,
	faultRestarted: codec.FaultRestarted,
	faultDead:      codec.FaultDead,
}

// FaultState 返回故障状态机的当前状态
func (sv *Supervisor) FaultState() codec.FaultState {
	return faultStates[sv.fault.Load()]
}

func (sv *Supervisor) onFault(sig unix.Signal) {
	sv.enterFault(describeSignal(sig))
}

// onPanic 主循环中的 panic 和故障信号走同一个状态机
func (sv *Supervisor) onPanic(r any) {
	sv.enterFault(fmt.Sprintf("panic (%v)", r))
}

func (sv *Supervisor) enterFault(desc string) {
	if !sv.fault.CompareAndSwap(faultNormal, faultOnce) {
		sv.onDoubleFault(desc)
		return
	}

	// 写日志和输出调用栈也可能再次触发同类故障，先升级分发表
	escalated := sv.table.Escalate()

	sv.logger.Errorf("Got fatal signal %s", desc)
	sv.trace()
	sv.logger.Debugf("Escalated %d fault signals to not-restarting handlers", len(escalated))

	if !sv.Detached() {
		sv.fault.Store(faultDead)
		sv.logger.Warn("Not restarting.")
		sv.finish(Outcome{
			Kind:   OutcomeDead,
			Status: 1,
			Err:    fmt.Errorf("%w %s", ErrFaultSignal, desc),
		})
		return
	}

	delay := sv.config().RestartDelay
	sv.setPhase(codec.PhaseRestarting)
	sv.logger.Warnf("Trying to re-execute in %s...", delay)

	go sv.recoverFromFault(delay)
}

func (sv *Supervisor) onDoubleFault(desc string) {
	if !sv.fault.CompareAndSwap(faultOnce, faultDead) {
		return
	}

	sv.logger.Errorf("Got another fatal signal %s: not restarting.", desc)
	sv.trace()
	sv.finish(Outcome{
		Kind:   OutcomeDead,
		Status: 1,
		Err:    fmt.Errorf("%w %s", ErrDoubleFault, desc),
	})
}

// recoverFromFault 关闭网络连接，冷却之后删除锁文件并请求重新执行
//
// 冷却期间如果发生第二次故障，状态已经变为 Dead，这里直接放弃重启。
func (sv *Supervisor) recoverFromFault(delay time.Duration) {
	sv.safeCall("close network connections", sv.network.CloseConnections)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-sv.done:
		return
	}

	if !sv.fault.CompareAndSwap(faultOnce, faultRestarted) {
		return
	}

	if err := pidfile.Release(sv.pidFile); err != nil {
		sv.logger.Errorf("Cannot remove lock file %s: %v", sv.pidFile, err)
	}

	sv.finish(Outcome{Kind: OutcomeRestart})
}

// trace 尽力输出所有协程的调用栈
func (sv *Supervisor) trace() {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, true)
	sv.logger.Errorf("Backtrace:\n%s", buf[:n])
}

func signalName(sig unix.Signal) string {
	return strings.TrimPrefix(unix.SignalName(sig), "SIG")
}

func describeSignal(sig unix.Signal) string {
	return fmt.Sprintf("%d (%s)", int(sig), sig.String())
}
