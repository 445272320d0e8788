// Package supervisor 提供 meshd 的进程生命周期控制
//
// 本模块负责：
// - 启动时安装信号分发表、获取单实例锁并脱离终端
// - 把异步到达的信号转换为确定的生命周期动作
// - 故障重启状态机（第二次故障直接退出，不会循环重启）
// - SIGINT 调试级别切换
// - 主循环中处理 HUP/ALRM/清理等延迟标志
// - 控制 socket，提供状态查询
//
// 文件组织：
//   - supervisor.go：核心结构定义和状态访问
//   - signals.go：信号分发表
//   - dispatch.go：按角色分发信号
//   - debug.go：调试级别切换
//   - fault.go：故障重启状态机
//   - daemon.go：启动和脱离终端
//   - loop.go：主循环和关闭流程
//   - ctl_server.go / ctl_client.go：控制 socket
//
// 信号由唯一的分发协程读取。分发协程只修改原子标志、调试级别和故障状态，
// 真正的工作（重载、重试连接、清理）都延迟到主循环中执行。
// 例外是转储和故障路径：它们在分发协程中直接执行，属于尽力而为的诊断动作。
package supervisor

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"meshd/pkg/codec"
	"meshd/pkg/config"
	"meshd/pkg/hook"
	"meshd/pkg/logger"
	"meshd/pkg/utils"

	"go.uber.org/zap"
)

// Supervisor 是生命周期控制器
//
// 字段说明：
//
//	Version: 启动横幅中显示的版本
//	StartedAt: 进入 Running 的时间
//	Pid: 脱离终端之后的进程 PID
type Supervisor struct {
	Version   string
	StartedAt time.Time
	Pid       int

	mu      sync.RWMutex
	cfg     *config.Config
	phase   codec.Phase
	pidFile string
	socket  string

	logger   *zap.SugaredLogger
	network  Network
	hooks    *hook.Executor
	detacher Detacher
	table    *SignalTable
	server   *ctlServer

	// 可替换的系统调用，测试中使用
	getpid     func() int
	loadConfig func() *config.Config

	sigOnce sync.Once
	sigCh   chan os.Signal

	detach atomic.Bool

	debugMu    sync.Mutex
	debugLevel int
	savedDebug int

	pendingHangup atomic.Bool
	pendingAlarm  atomic.Bool
	pendingPurge  atomic.Bool
	wake          chan struct{}

	fault      atomic.Int32
	outcome    chan Outcome
	finishOnce sync.Once
	done       chan struct{}
}

// NewSupervisor 根据配置创建生命周期控制器
//
// 创建之后处于 Initializing 阶段，不会安装信号处理，也不会接触锁文件，
// 这些动作由 Start 完成。
func NewSupervisor(cfg *config.Config, network Network) *Supervisor {
	sv := &Supervisor{
		Version:    utils.Version,
		cfg:        cfg,
		phase:      codec.PhaseInitializing,
		pidFile:    cfg.PidFile,
		socket:     cfg.Socket,
		logger:     logger.Logging("supervisor"),
		network:    network,
		hooks:      hook.NewExecutor(cfg.ConfBase),
		table:      NewSignalTable(!cfg.Daemonize),
		getpid:     os.Getpid,
		debugLevel: cfg.DebugLevel,
		savedDebug: -1,
		wake:       make(chan struct{}, 1),
		outcome:    make(chan Outcome, 1),
		done:       make(chan struct{}),
		loadConfig: func() *config.Config {
			config.SetConfig(config.ConfigFileFlag)
			return config.GetConfig()
		},
	}

	sv.detach.Store(cfg.Daemonize)
	if cfg.Daemonize {
		sv.detacher = newDaemonDetacher()
	}

	logger.SetDebugLevel(cfg.DebugLevel)

	return sv
}

// Phase 返回当前阶段
func (sv *Supervisor) Phase() codec.Phase {
	sv.mu.RLock()
	defer sv.mu.RUnlock()

	return sv.phase
}

func (sv *Supervisor) setPhase(p codec.Phase) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	sv.phase = p
}

func (sv *Supervisor) config() *config.Config {
	sv.mu.RLock()
	defer sv.mu.RUnlock()

	return sv.cfg
}

// Detached 是否以守护进程模式运行
func (sv *Supervisor) Detached() bool {
	return sv.detach.Load()
}

// Table 返回信号分发表
func (sv *Supervisor) Table() *SignalTable {
	return sv.table
}

// Done 在主循环的结果确定后关闭
func (sv *Supervisor) Done() <-chan struct{} {
	return sv.done
}

// Status 返回控制 socket 使用的状态快照
func (sv *Supervisor) Status() *codec.StatusInfo {
	level, elevated := sv.debugState()

	sv.mu.RLock()
	defer sv.mu.RUnlock()

	return &codec.StatusInfo{
		Pid:        sv.Pid,
		NetName:    sv.cfg.NetName,
		Phase:      sv.phase,
		Fault:      sv.FaultState(),
		Detached:   sv.Detached(),
		DebugLevel: level,
		Elevated:   elevated,
		StartedAt:  sv.StartedAt,
		Version:    sv.Version,
	}
}

// RequestReload 设置 HUP 延迟标志，效果与收到 SIGHUP 相同
func (sv *Supervisor) RequestReload() {
	sv.pendingHangup.Store(true)
	sv.notify()
}

// RequestPurge 设置清理延迟标志，效果与收到 SIGWINCH 相同
func (sv *Supervisor) RequestPurge() {
	sv.pendingPurge.Store(true)
	sv.notify()
}

// notify 唤醒主循环，唤醒通道已满时说明主循环还没处理上一次唤醒，直接丢弃
func (sv *Supervisor) notify() {
	select {
	case sv.wake <- struct{}{}:
	default:
	}
}

// finish 确定主循环的结果，只有第一次调用生效
func (sv *Supervisor) finish(o Outcome) {
	sv.finishOnce.Do(func() {
		sv.outcome <- o
		close(sv.done)
	})
}
