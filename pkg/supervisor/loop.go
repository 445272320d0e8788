package supervisor

import (
	"context"
	"time"

	"meshd/pkg/codec"
	"meshd/pkg/logger"
	"meshd/pkg/pidfile"
	"meshd/pkg/utils/constants"
)

// Run 是主循环，阻塞到结果确定为止
//
// 每次被唤醒或定时维护之后都会处理 HUP/ALRM/清理三个延迟标志。
// ctx 取消等同于收到 SIGTERM。返回的 Outcome 由调用方执行（退出或重新执行）。
func (sv *Supervisor) Run(ctx context.Context) Outcome {
	sv.startServer()

	interval := sv.config().MaintenanceInterval
	if interval <= 0 {
		interval = constants.DefaultMaintenanceInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case out := <-sv.outcome:
			return sv.conclude(out)
		case <-ctx.Done():
			sv.finish(Outcome{Kind: OutcomeShutdown})
			return sv.conclude(<-sv.outcome)
		case <-ticker.C:
			sv.work("periodic maintenance", sv.network.RetryConnections)
		case <-sv.wake:
		}

		sv.drain()
	}
}

// drain 处理并清除延迟标志
//
// 用 Swap 读取并清零，处理期间再次到达的信号会在下一轮被处理；
// 处理之前连续到达的多个同类信号只触发一次动作。
func (sv *Supervisor) drain() {
	if sv.pendingHangup.Swap(false) {
		sv.work("reload", sv.reload)
	}

	if sv.pendingAlarm.Swap(false) {
		sv.logger.Info("Got ALRM signal")
		sv.work("retry connections", sv.network.RetryConnections)
	}

	if sv.pendingPurge.Swap(false) {
		sv.logger.Info("Purging unreachable nodes")
		sv.work("purge", sv.network.PurgeUnreachable)
	}
}

// work 执行主循环中的一项工作，panic 交给故障状态机处理
func (sv *Supervisor) work(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sv.logger.Errorf("Panic during %s", what)
			sv.onPanic(r)
		}
	}()

	fn()
}

func (sv *Supervisor) reload() {
	sv.logger.Info("Got HUP signal, reloading configuration")

	cfg := sv.loadConfig()
	if cfg == nil {
		sv.logger.Error("Unable to reload configuration, keeping the old one")
		return
	}

	sv.mu.Lock()
	sv.cfg = cfg
	sv.mu.Unlock()

	sv.setDebugLevel(cfg.DebugLevel)

	if err := sv.openLog(); err != nil {
		sv.logger.Errorf("Unable to reopen log: %v", err)
	}

	if err := sv.network.Reload(cfg); err != nil {
		sv.logger.Errorf("Unable to reload network: %v", err)
	}
}

// conclude 按结果执行收尾工作
//
// Shutdown：关闭网络连接、执行 down 钩子、释放锁并关闭日志。
// Restart：连接和锁已经在恢复过程中处理，只关闭日志。
// Dead：保留锁文件，下次启动时会被识别为失效锁。
func (sv *Supervisor) conclude(out Outcome) Outcome {
	sv.stopServer()

	switch out.Kind {
	case OutcomeShutdown:
		sv.setPhase(codec.PhaseTerminating)
		sv.stopSignals()

		sv.safeCall("close network connections", sv.network.CloseConnections)
		if sv.DebugLevel() >= constants.DebugConnections {
			sv.safeCall("dump device stats", sv.network.DumpDeviceStats)
		}

		sv.runHook("down")

		if err := pidfile.Release(sv.pidFile); err != nil {
			sv.logger.Errorf("Cannot remove lock file %s: %v", sv.pidFile, err)
		}

		sv.logger.Info("Terminating")
	case OutcomeRestart:
		sv.stopSignals()
		sv.logger.Info("Re-executing")
	case OutcomeDead:
		sv.stopSignals()
		sv.logger.Errorf("Exiting: %v", out.Err)
	}

	logger.Close()

	return out
}
