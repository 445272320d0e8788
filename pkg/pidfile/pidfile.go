// Package pidfile 管理单实例锁文件
//
// 锁文件的内容是持有者进程的十进制 PID 加换行符。
// 文件存在并不代表实例仍在运行，持有者是否存活总是通过 kill(pid, 0) 探测。
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

var ErrInvalidPID = errors.New("invalid PID in lock file")

// AlreadyRunningError 表示锁文件被一个存活的进程持有
type AlreadyRunningError struct {
	Path string
	Pid  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("already running with pid %d (lock file %s)", e.Pid, e.Path)
}

// Read 读取锁文件中记录的 PID，不检查进程是否存活
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, text)
	}

	if pid <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}

	return pid, nil
}

// CheckExisting 返回仍然存活的锁持有者 PID
//
// 文件不存在、内容无法解析、记录的是当前进程自己，
// 或者记录的进程已经不存在时，都视为没有锁。
func CheckExisting(path string) (int, bool) {
	pid, err := Read(path)
	if err != nil {
		return 0, false
	}

	if pid == os.Getpid() {
		return 0, false
	}

	if !IsAlive(pid) {
		return 0, false
	}

	return pid, true
}

// IsAlive 探测进程是否存在，EPERM 说明进程存在但属于其他用户
func IsAlive(pid int) bool {
	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}

// Acquire 为当前进程获取锁文件
//
// 锁已被存活进程持有时返回 *AlreadyRunningError，且不修改文件。
// 检查和写入之间用 <path>.lock 上的 flock 互斥，只能防止同一台主机上的并发启动，
// 不是分布式锁。
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create lock directory: %w", err)
	}

	guardPath := path + ".lock"
	guard := flock.New(guardPath)

	locked, err := guard.TryLock()
	if err != nil {
		return fmt.Errorf("cannot lock %s: %w", guardPath, err)
	}
	if !locked {
		pid, _ := Read(path)
		return &AlreadyRunningError{Path: path, Pid: pid}
	}
	// 保护文件保留在原处，删除后并发的启动者可能各自锁住不同的 inode
	defer func() {
		_ = guard.Unlock()
	}()

	if pid, held := CheckExisting(path); held {
		return &AlreadyRunningError{Path: path, Pid: pid}
	}

	return Rewrite(path, os.Getpid())
}

// Rewrite 无条件地把 pid 原子写入锁文件（先写临时文件再 rename）
func Rewrite(path string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("cannot create lock file: %w", err)
	}

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err = fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		cleanup()
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	if err = tmp.Chmod(0o644); err != nil {
		cleanup()
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	return nil
}

// Release 删除锁文件，文件不存在时不报错
func Release(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// ProbeStale 向锁文件记录的进程发送信号 sig（0 表示只探测）
//
// 目标进程不存在时删除锁文件并返回 true，调用方可以继续执行。
// 锁文件不存在或内容无效时返回 Read 的错误。
func ProbeStale(path string, sig unix.Signal) (bool, error) {
	pid, err := Read(path)
	if err != nil {
		return false, err
	}

	err = unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		if rerr := Release(path); rerr != nil {
			return true, rerr
		}
		return true, nil
	}

	if err != nil {
		return false, fmt.Errorf("cannot signal pid %d: %w", pid, err)
	}

	return false, nil
}
