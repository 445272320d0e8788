package hook

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// skipOnSpawnError 某些沙箱环境禁止 fork/exec
func skipOnSpawnError(t *testing.T, res Result) {
	t.Helper()
	if res.Status == SpawnFailed && res.Err != nil && strings.Contains(res.Err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", res.Err)
	}
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func TestRun_Classification(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok", "exit 0")
	writeScript(t, dir, "seven", "exit 7")
	writeScript(t, dir, "suicide", "kill -TERM $$")

	e := NewExecutor(dir)

	t.Run("exit 0 is success", func(t *testing.T) {
		res := e.Run("ok", nil)
		skipOnSpawnError(t, res)
		assert.Equal(t, Success, res.Status)
		assert.Positive(t, res.Pid)
		assert.NoError(t, res.Error())
		assert.False(t, res.Failed())
	})

	t.Run("exit 7 is non-zero exit", func(t *testing.T) {
		res := e.Run("seven", nil)
		skipOnSpawnError(t, res)
		assert.Equal(t, NonZeroExit, res.Status)
		assert.Equal(t, 7, res.Code)
		assert.ErrorIs(t, res.Error(), ErrNonZeroExit)
		assert.True(t, res.Failed())
	})

	t.Run("self-signalled script is killed by signal", func(t *testing.T) {
		res := e.Run("suicide", nil)
		skipOnSpawnError(t, res)
		assert.Equal(t, KilledBySignal, res.Status)
		assert.Equal(t, unix.SIGTERM, res.Signal)
		assert.ErrorIs(t, res.Error(), ErrKilledBySignal)
	})

	t.Run("missing script is skipped", func(t *testing.T) {
		res := e.Run("absent", nil)
		assert.Equal(t, Skipped, res.Status)
		assert.Zero(t, res.Pid, "nothing must be spawned")
		assert.NoError(t, res.Error())
	})
}

func TestRun_EnvironmentAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	writeScript(t, dir, "env", `echo "$NETNAME $MESHD_HOOK_TEST $(pwd)" > `+out)

	before := os.Getenv("NETNAME")

	e := NewExecutor(dir)
	res := e.Run("env", []string{"NETNAME=office", "MESHD_HOOK_TEST=1"})
	skipOnSpawnError(t, res)
	require.Equal(t, Success, res.Status)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "office 1 /\n", string(data))

	assert.Equal(t, before, os.Getenv("NETNAME"), "parent environment must not change")
	_, set := os.LookupEnv("MESHD_HOOK_TEST")
	assert.False(t, set)
}

func TestRun_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), []byte("#!/bin/sh\nexit 0\n"), 0o644))

	res := NewExecutor(dir).Run("plain", nil)
	assert.Equal(t, SpawnFailed, res.Status)
	assert.ErrorIs(t, res.Error(), ErrSpawnFailed)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "KilledBySignal", KilledBySignal.String())
	assert.Equal(t, "Skipped", Skipped.String())
}

func TestWaitPid_RetriesOnEINTR(t *testing.T) {
	calls := 0
	wait4 = func(pid int, ws *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error) {
		calls++
		if calls < 3 {
			return -1, unix.EINTR
		}
		// 正常退出，退出码 3
		*ws = unix.WaitStatus(3 << 8)
		return pid, nil
	}
	t.Cleanup(func() { wait4 = unix.Wait4 })

	ws, err := waitPid(1234)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, ws.Exited())
	assert.Equal(t, 3, ws.ExitStatus())
}

func TestWaitPid_OtherErrorsAreReturned(t *testing.T) {
	wait4 = func(int, *unix.WaitStatus, int, *unix.Rusage) (int, error) {
		return -1, unix.ECHILD
	}
	t.Cleanup(func() { wait4 = unix.Wait4 })

	_, err := waitPid(1234)
	assert.ErrorIs(t, err, unix.ECHILD)
}

func TestRun_SignalsDuringWait(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "slow", "sleep 0.3")

	// 不接收 SIGUSR1 的话默认动作会终止测试进程
	ch := make(chan os.Signal, 64)
	signal.Notify(ch, unix.SIGUSR1)
	defer signal.Stop(ch)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = unix.Kill(os.Getpid(), unix.SIGUSR1)
			}
		}
	}()

	res := NewExecutor(dir).Run("slow", nil)
	close(stop)
	<-done

	skipOnSpawnError(t, res)
	assert.Equal(t, Success, res.Status)
	assert.NoError(t, res.Error())
	assert.NotEmpty(t, ch, "signals must have been delivered while waiting")
}
