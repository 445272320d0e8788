package supervisor

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"meshd/pkg/codec"
	"meshd/pkg/config"
	"meshd/pkg/logger"
	"meshd/pkg/pidfile"
	"meshd/pkg/utils/constants"

	"github.com/gnuos/daemon"
	"golang.org/x/sys/unix"
)

// daemon 包通过这个环境变量标记已经脱离终端的子进程
const daemonMarkEnv = "_GO_DAEMON"

// Detacher 负责让进程脱离控制终端
type Detacher interface {
	// IsChild 当前进程是否是脱离终端后的子进程
	IsChild() bool
	// Detach 脱离终端。父进程返回 parent=true，应当立即以 0 退出；子进程返回 false
	Detach() (parent bool, err error)
}

type daemonDetacher struct {
	ctx *daemon.Context
}

func newDaemonDetacher() *daemonDetacher {
	return &daemonDetacher{
		ctx: &daemon.Context{
			WorkDir: "/",
			Umask:   027,
			Args:    os.Args,
			Env:     childEnv(os.Environ(), config.LaunchDir()),
		},
	}
}

// childEnv 子进程会重新解析命令行参数，相对路径需要按启动目录解析
func childEnv(environ []string, launchDir string) []string {
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if strings.HasPrefix(kv, config.LaunchDirEnv+"=") {
			continue
		}
		env = append(env, kv)
	}

	return append(env, config.LaunchDirEnv+"="+launchDir)
}

func (d *daemonDetacher) IsChild() bool {
	return daemon.WasReborn()
}

func (d *daemonDetacher) Detach() (bool, error) {
	child, err := d.ctx.Reborn()
	if err != nil {
		return false, err
	}

	return child != nil, nil
}

// SetDetacher 替换脱离终端的实现
func (sv *Supervisor) SetDetacher(d Detacher) {
	sv.detacher = d
}

// Start 执行启动序列
//
// 功能：
//  1. 安装信号分发表
//  2. 获取锁文件（脱离终端后的子进程跳过，锁由父进程获取）
//  3. 守护模式下关闭日志、脱离终端，子进程用新的 PID 重写锁文件
//  4. 重新打开日志并输出启动横幅
//  5. 进入 Running 阶段并执行 up 钩子
//
// 返回：
//
//	parent: 当前进程是脱离终端时的父进程，调用方应当以 0 退出且不释放锁
//	err: *pidfile.AlreadyRunningError、ErrDetachFailed 或 ErrLockWriteFailed
//
// 失败时由本方法获取的锁会被释放。
func (sv *Supervisor) Start() (bool, error) {
	sv.InstallSignals()

	child := sv.Detached() && sv.detacher != nil && sv.detacher.IsChild()

	if !child {
		if err := pidfile.Acquire(sv.pidFile); err != nil {
			var running *pidfile.AlreadyRunningError
			if errors.As(err, &running) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrLockWriteFailed, err)
		}
	}

	if sv.Detached() {
		logger.Close()

		parent, err := sv.detacher.Detach()
		if err != nil {
			_ = pidfile.Release(sv.pidFile)
			return false, fmt.Errorf("%w: %v", ErrDetachFailed, err)
		}

		if parent {
			return true, nil
		}

		sv.setPhase(codec.PhaseDaemonized)

		// 脱离终端之前写入的是父进程的 PID
		if err := pidfile.Rewrite(sv.pidFile, sv.getpid()); err != nil {
			_ = pidfile.Release(sv.pidFile)
			return false, fmt.Errorf("%w: %v", ErrLockWriteFailed, err)
		}
	}

	if err := sv.openLog(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "WARN: %v, logging to stderr\n", err)
	}

	sv.mu.Lock()
	sv.Pid = sv.getpid()
	sv.StartedAt = time.Now()
	sv.phase = codec.PhaseRunning
	sv.mu.Unlock()

	sv.logger.Infof("meshd %s starting, debug level %d", sv.Version, sv.DebugLevel())

	sv.runHook("up")

	return false, nil
}

// openLog 按配置选择日志输出：配置了日志文件时写文件，守护模式写 syslog，否则写标准错误
func (sv *Supervisor) openLog() error {
	cfg := sv.config()

	mode := logger.ModeStderr
	switch {
	case cfg.Log.FileEnabled:
		mode = logger.ModeFile
	case sv.Detached() && cfg.Log.Syslog:
		mode = logger.ModeSyslog
	}

	err := logger.Open(cfg.Identity(), mode, logger.Options{
		FilePath:     cfg.Log.FilePath,
		FileSize:     cfg.Log.FileSize,
		FileCompress: cfg.Log.FileCompress,
		MaxAge:       cfg.Log.MaxAge,
		MaxBackups:   cfg.Log.MaxBackups,
	})
	if err != nil {
		_ = logger.Open(cfg.Identity(), logger.ModeStderr, logger.Options{})
		return err
	}

	return nil
}

// runHook 执行 <daemon>-<event> 钩子，失败只记录日志
func (sv *Supervisor) runHook(event string) {
	name := fmt.Sprintf("%s-%s", constants.DefaultDaemonName, event)

	res := sv.hooks.Run(name, sv.hookEnv())
	if err := res.Error(); err != nil {
		sv.logger.Warnf("Hook %s failed: %v", name, err)
	}
}

// hookEnv 钩子脚本的环境变量，配置中的 env 按键名排序追加
func (sv *Supervisor) hookEnv() []string {
	cfg := sv.config()

	env := []string{
		"NETNAME=" + cfg.NetName,
		"DEBUG_LEVEL=" + strconv.Itoa(sv.DebugLevel()),
		"PID=" + strconv.Itoa(sv.getpid()),
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", strings.ToUpper(k), cfg.Env[k]))
	}

	return env
}

// Reexec 用原来的参数重新执行当前程序，成功时不返回
//
// 去掉守护进程标记，新的进程会重新走完整的启动序列。
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	env := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, daemonMarkEnv+"=") {
			continue
		}
		env = append(env, kv)
	}

	return unix.Exec(exe, os.Args, env)
}
