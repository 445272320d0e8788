package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"meshd/pkg/codec"
)

func TestDispatch_Dumps(t *testing.T) {
	sv, network := newTestSupervisor(t, testConfig(t, false))

	sv.dispatch(unix.SIGUSR1)
	assert.Equal(t, 1, network.count("DumpConnections"))
	assert.Equal(t, 0, network.count("DumpNodes"))

	sv.dispatch(unix.SIGUSR2)
	for _, name := range []string{"DumpDeviceStats", "DumpNodes", "DumpEdges", "DumpSubnets"} {
		assert.Equal(t, 1, network.count(name), name)
	}
}

func TestDispatch_DumpPanicRecovered(t *testing.T) {
	sv, network := newTestSupervisor(t, testConfig(t, false))
	network.failOn("DumpNodes")

	assert.NotPanics(t, func() { sv.dispatch(unix.SIGUSR2) })

	// 失败的转储不影响后面的转储和故障状态
	assert.Equal(t, 1, network.count("DumpEdges"))
	assert.Equal(t, 1, network.count("DumpSubnets"))
	assert.Equal(t, codec.FaultNormal, sv.FaultState())
}

func TestDispatch_IgnoredSignals(t *testing.T) {
	for _, daemonize := range []bool{true, false} {
		cfg := testConfig(t, daemonize)
		cfg.DebugLevel = 10
		sv, network := newTestSupervisor(t, cfg)

		for _, sig := range []unix.Signal{unix.SIGPIPE, unix.SIGCHLD, unix.SIGURG, unix.SIGTTIN} {
			sv.dispatch(sig)
		}

		assert.Equal(t, codec.PhaseInitializing, sv.Phase())
		assert.Equal(t, codec.FaultNormal, sv.FaultState())
		assert.Empty(t, network.calls)

		select {
		case <-sv.Done():
			t.Fatal("ignored signal finished the main loop")
		default:
		}
	}
}

func TestDispatch_DeferredFlagsOnly(t *testing.T) {
	sv, network := newTestSupervisor(t, testConfig(t, false))

	sv.dispatch(unix.SIGHUP)
	sv.dispatch(unix.SIGALRM)
	sv.dispatch(unix.SIGWINCH)

	// 分发协程只设置标志，不调用网络层
	assert.Empty(t, network.calls)
	assert.True(t, sv.pendingHangup.Load())
	assert.True(t, sv.pendingAlarm.Load())
	assert.True(t, sv.pendingPurge.Load())
	assert.Len(t, sv.wake, 1)

	sv.drain()
	assert.Equal(t, 1, network.count("Reload"))
	assert.Equal(t, 1, network.count("RetryConnections"))
	assert.Equal(t, 1, network.count("PurgeUnreachable"))
	assert.False(t, sv.pendingHangup.Load())
}
