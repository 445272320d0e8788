package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// deadPid 大于 Linux 的 pid_max 上限，kill 总是返回 ESRCH
const deadPid = 99999999

func writePid(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	require.NoError(t, Release(path))
	assert.NoFileExists(t, path)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meshd.pid.lock", entries[0].Name())
}

func TestAcquire_GuardFileIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")
	guardPath := path + ".lock"

	require.NoError(t, Acquire(path))
	require.NoError(t, Release(path))

	before, err := os.Stat(guardPath)
	require.NoError(t, err)

	// 另一个启动者持有保护锁时不会写入锁文件
	other := flock.New(guardPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	var running *AlreadyRunningError
	require.ErrorAs(t, Acquire(path), &running)
	assert.NoFileExists(t, path)

	require.NoError(t, other.Unlock())

	require.NoError(t, Acquire(path))

	after, err := os.Stat(guardPath)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "guard file must keep its inode")

	// 保护锁在返回前已经释放
	locked, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, other.Unlock())
}

func TestAcquire_LivePidIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")

	// 父进程（go test）一定存活且不是当前进程
	holder := strconv.Itoa(os.Getppid()) + "\n"
	writePid(t, path, holder)

	for i := 0; i < 3; i++ {
		err := Acquire(path)

		var running *AlreadyRunningError
		require.ErrorAs(t, err, &running)
		assert.Equal(t, os.Getppid(), running.Pid)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, holder, string(data))
}

func TestAcquire_DeadOrMalformedLockIsReplaced(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead pid", strconv.Itoa(deadPid) + "\n"},
		{"garbage", "not-a-pid\n"},
		{"empty", ""},
		{"zero", "0\n"},
		{"negative", "-12\n"},
		{"own pid", strconv.Itoa(os.Getpid()) + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "meshd.pid")
			writePid(t, path, tt.content)

			_, held := CheckExisting(path)
			assert.False(t, held)

			require.NoError(t, Acquire(path))

			pid, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, os.Getpid(), pid)
		})
	}
}

func TestCheckExisting_Missing(t *testing.T) {
	_, held := CheckExisting(filepath.Join(t.TempDir(), "absent.pid"))
	assert.False(t, held)
}

func TestRead_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")
	writePid(t, path, "12.5\n")

	_, err := Read(path)
	assert.ErrorIs(t, err, ErrInvalidPID)
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")

	assert.NoError(t, Release(path))
	require.NoError(t, Acquire(path))
	assert.NoError(t, Release(path))
	assert.NoError(t, Release(path))
}

func TestProbeStale(t *testing.T) {
	t.Run("dead holder is cleared", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meshd.pid")
		writePid(t, path, strconv.Itoa(deadPid)+"\n")

		stale, err := ProbeStale(path, 0)
		require.NoError(t, err)
		assert.True(t, stale)
		assert.NoFileExists(t, path)

		require.NoError(t, Acquire(path))
		pid, err := Read(path)
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})

	t.Run("live holder is kept", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meshd.pid")
		writePid(t, path, strconv.Itoa(os.Getpid())+"\n")

		stale, err := ProbeStale(path, unix.Signal(0))
		require.NoError(t, err)
		assert.False(t, stale)
		assert.FileExists(t, path)
	})

	t.Run("missing lock file", func(t *testing.T) {
		_, err := ProbeStale(filepath.Join(t.TempDir(), "absent.pid"), 0)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshd.pid")
	writePid(t, path, "1\n")

	require.NoError(t, Rewrite(path, 4242))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
