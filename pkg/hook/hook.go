// Package hook 同步执行配置目录下的钩子脚本
//
// 钩子脚本按 <base>/<name> 定位，不带参数、不经过 shell，也不搜索 $PATH。
// 脚本不存在不是错误，视为没有配置钩子。
package hook

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"meshd/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	ErrSpawnFailed     = errors.New("hook script could not be spawned")
	ErrNonZeroExit     = errors.New("hook script exited with non-zero status")
	ErrKilledBySignal  = errors.New("hook script was killed by a signal")
	ErrAbnormalHookEnd = errors.New("hook script terminated abnormally")
)

// Status 钩子脚本的执行结果分类
type Status int

const (
	Skipped Status = iota
	Success
	NonZeroExit
	KilledBySignal
	AbnormalTermination
	SpawnFailed
)

var statusNames = map[Status]string{
	Skipped:             "Skipped",
	Success:             "Success",
	NonZeroExit:         "NonZeroExit",
	KilledBySignal:      "KilledBySignal",
	AbnormalTermination: "AbnormalTermination",
	SpawnFailed:         "SpawnFailed",
}

func (s Status) String() string {
	return statusNames[s]
}

// Result 一次钩子调用的结果
type Result struct {
	Name   string
	Path   string
	Pid    int
	Status Status
	Code   int
	Signal unix.Signal
	Err    error
}

// Failed 判断结果是否需要调用方关注
func (r Result) Failed() bool {
	return r.Status != Success && r.Status != Skipped
}

// Error 将结果映射为错误，Success 和 Skipped 返回 nil
func (r Result) Error() error {
	switch r.Status {
	case NonZeroExit:
		return fmt.Errorf("%w: %s exited with %d", ErrNonZeroExit, r.Name, r.Code)
	case KilledBySignal:
		return fmt.Errorf("%w: %s got %s", ErrKilledBySignal, r.Name, unix.SignalName(r.Signal))
	case AbnormalTermination:
		return fmt.Errorf("%w: %s", ErrAbnormalHookEnd, r.Name)
	case SpawnFailed:
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, r.Name, r.Err)
	}

	return nil
}

// Executor 在 Base 目录下查找并执行钩子
type Executor struct {
	Base string

	logger *zap.SugaredLogger
}

func NewExecutor(base string) *Executor {
	return &Executor{
		Base:   base,
		logger: logger.Logging("hook"),
	}
}

// Run 执行名为 name 的钩子脚本并阻塞到子进程结束
//
// 参数：
//
//	name: 脚本文件名，相对于 Base
//	env: 追加到子进程环境中的 KEY=VALUE，父进程环境不受影响
//
// 子进程的工作目录为 /，标准输入输出都指向空设备。
func (e *Executor) Run(name string, env []string) Result {
	res := Result{
		Name: name,
		Path: filepath.Join(e.Base, name),
	}

	if _, err := os.Stat(res.Path); err != nil {
		res.Status = Skipped
		e.logger.Debugf("No %s script at %s", name, res.Path)
		return res
	}

	cmd := &exec.Cmd{
		Path: res.Path,
		Args: []string{res.Path},
		Env:  append(os.Environ(), env...),
		Dir:  "/",
	}

	if err := cmd.Start(); err != nil {
		res.Status = SpawnFailed
		res.Err = err
		e.logger.Errorf("Could not execute `%s': %v", res.Path, err)
		return res
	}

	res.Pid = cmd.Process.Pid
	e.logger.Infof("Executing script %s", name)

	ws, err := waitPid(res.Pid)
	_ = cmd.Process.Release()
	if err != nil {
		res.Status = AbnormalTermination
		res.Err = err
		e.logger.Errorf("System call `wait4' failed: %v", err)
		return res
	}

	classify(&res, ws)
	e.report(res)

	return res
}

// 测试中替换
var wait4 = unix.Wait4

// waitPid 等待子进程结束，被无关信号打断（EINTR）时重试
func waitPid(pid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus

	for {
		wpid, err := wait4(pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return ws, err
		}
		if wpid == pid {
			return ws, nil
		}
	}
}

func classify(res *Result, ws unix.WaitStatus) {
	switch {
	case ws.Exited():
		res.Code = ws.ExitStatus()
		if res.Code == 0 {
			res.Status = Success
		} else {
			res.Status = NonZeroExit
		}
	case ws.Signaled():
		res.Status = KilledBySignal
		res.Signal = ws.Signal()
	default:
		res.Status = AbnormalTermination
	}
}

func (e *Executor) report(res Result) {
	switch res.Status {
	case Success:
		e.logger.Debugf("Process %d (%s) exited successfully", res.Pid, res.Name)
	case NonZeroExit:
		e.logger.Errorf("Process %d (%s) exited with non-zero status %d", res.Pid, res.Name, res.Code)
	case KilledBySignal:
		e.logger.Errorf("Process %d (%s) was killed by signal %d (%s)", res.Pid, res.Name, int(res.Signal), res.Signal)
	default:
		e.logger.Errorf("Process %d (%s) terminated abnormally", res.Pid, res.Name)
	}
}
