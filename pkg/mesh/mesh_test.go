package mesh

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshd/pkg/config"
)

// peer 是一个只接受连接的远端节点
type peer struct {
	ln    net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func newPeer(t *testing.T) *peer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &peer{ln: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			p.mu.Lock()
			p.conns = append(p.conns, c)
			p.mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, c := range p.conns {
			_ = c.Close()
		}
	})

	return p
}

// hangup 关闭所有已接受的连接，监听保持不变
func (p *peer) hangup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		_ = c.Close()
	}
	p.conns = nil
}

func (p *peer) addr() string {
	return p.ln.Addr().String()
}

func (p *peer) accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.conns)
}

func deadAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func nodeByName(t *testing.T, m *Mesh, name string) Node {
	t.Helper()

	for _, n := range m.Nodes() {
		if n.Name == name {
			return n
		}
	}

	t.Fatalf("node %s not found", name)
	return Node{}
}

func TestNew_PreservesConfigOrder(t *testing.T) {
	m := New(&config.Config{Nodes: []config.Node{
		{Name: "charlie", Address: "127.0.0.1:1"},
		{Name: "alpha", Address: "127.0.0.1:2"},
		{Name: "bravo", Address: "127.0.0.1:3"},
	}})

	var names []string
	for _, n := range m.Nodes() {
		names = append(names, n.Name)
		assert.True(t, n.Configured)
		assert.False(t, n.Reachable())
	}

	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, names)
}

func TestRetryConnections(t *testing.T) {
	p := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{
		{Name: "alive", Address: p.addr()},
		{Name: "dead", Address: deadAddr(t)},
	}})
	defer m.CloseConnections()

	m.RetryConnections()

	assert.True(t, nodeByName(t, m, "alive").Reachable())
	assert.False(t, nodeByName(t, m, "dead").Reachable())
	assert.Equal(t, uint64(1), m.stats.Dialed)
	assert.Equal(t, uint64(1), m.stats.DialFailed)

	// 已经连上的节点不会重复拨号
	m.RetryConnections()
	assert.Eventually(t, func() bool { return p.accepted() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), m.stats.Dialed)
}

func TestRetryConnections_RedialsAfterHangup(t *testing.T) {
	p := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{{Name: "alive", Address: p.addr()}}})
	defer m.CloseConnections()

	m.RetryConnections()
	require.Eventually(t, func() bool { return p.accepted() == 1 }, time.Second, 10*time.Millisecond)

	p.hangup()
	require.Eventually(t, func() bool { return !nodeByName(t, m, "alive").Reachable() }, time.Second, 10*time.Millisecond)

	m.RetryConnections()
	assert.True(t, nodeByName(t, m, "alive").Reachable())
	assert.Eventually(t, func() bool { return p.accepted() == 1 }, time.Second, 10*time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, uint64(2), m.stats.Dialed)
}

func TestCloseConnections_KeepsNodes(t *testing.T) {
	p := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{{Name: "alive", Address: p.addr()}}})
	m.RetryConnections()
	require.True(t, nodeByName(t, m, "alive").Reachable())

	m.CloseConnections()

	nodes := m.Nodes()
	require.Len(t, nodes, 1)
	assert.False(t, nodes[0].Reachable())

	// 再次关闭没有副作用
	m.CloseConnections()
}

func TestIncomingAndPurge(t *testing.T) {
	m := New(&config.Config{
		Listen: "127.0.0.1:0",
		Nodes:  []config.Node{{Name: "static", Address: deadAddr(t)}},
	})
	require.NoError(t, m.Listen())

	c, err := net.Dial("tcp", m.Addr().String())
	require.NoError(t, err)
	defer func() {
		_ = c.Close()
	}()

	require.Eventually(t, func() bool { return len(m.Nodes()) == 2 }, time.Second, 10*time.Millisecond)

	// 可达的学习节点不会被清理
	m.PurgeUnreachable()
	assert.Len(t, m.Nodes(), 2)

	m.CloseConnections()
	assert.Nil(t, m.Addr())

	m.PurgeUnreachable()
	nodes := m.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "static", nodes[0].Name)
}

func TestPurgeAfterPeerDisconnect(t *testing.T) {
	m := New(&config.Config{
		Listen: "127.0.0.1:0",
		Nodes:  []config.Node{{Name: "static", Address: deadAddr(t)}},
	})
	require.NoError(t, m.Listen())
	defer m.CloseConnections()

	var clients []net.Conn
	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", m.Addr().String())
		require.NoError(t, err)
		clients = append(clients, c)
	}

	require.Eventually(t, func() bool { return len(m.Nodes()) == 4 }, time.Second, 10*time.Millisecond)

	for _, c := range clients {
		require.NoError(t, c.Close())
	}

	require.Eventually(t, func() bool {
		for _, n := range m.Nodes() {
			if !n.Configured && n.Reachable() {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	// 监听仍在运行，断开的学习节点被清理
	m.PurgeUnreachable()
	nodes := m.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "static", nodes[0].Name)
	assert.NotNil(t, m.Addr())
}

func TestReload(t *testing.T) {
	p1 := newPeer(t)
	p2 := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{
		{Name: "keep", Address: p1.addr()},
		{Name: "drop", Address: p2.addr()},
	}})
	defer m.CloseConnections()

	m.RetryConnections()
	require.True(t, nodeByName(t, m, "keep").Reachable())
	require.True(t, nodeByName(t, m, "drop").Reachable())

	err := m.Reload(&config.Config{NetName: "vpn", Nodes: []config.Node{
		{Name: "keep", Address: p1.addr(), Subnets: []string{"10.0.0.0/24"}},
		{Name: "moved", Address: p2.addr()},
	}})
	require.NoError(t, err)

	var names []string
	for _, n := range m.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"keep", "moved"}, names)

	keep := nodeByName(t, m, "keep")
	assert.True(t, keep.Reachable())
	assert.Equal(t, []string{"10.0.0.0/24"}, keep.Subnets)
	assert.False(t, nodeByName(t, m, "moved").Reachable())
	assert.Equal(t, "meshd.vpn", m.name)

	m.RetryConnections()
	assert.True(t, nodeByName(t, m, "moved").Reachable())
}

func TestReload_AddressChangeDropsConnection(t *testing.T) {
	p := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{{Name: "node", Address: p.addr()}}})
	defer m.CloseConnections()

	m.RetryConnections()
	require.True(t, nodeByName(t, m, "node").Reachable())

	require.NoError(t, m.Reload(&config.Config{Nodes: []config.Node{{Name: "node", Address: deadAddr(t)}}}))
	assert.False(t, nodeByName(t, m, "node").Reachable())
}

func TestDumps(t *testing.T) {
	p := newPeer(t)

	m := New(&config.Config{Nodes: []config.Node{
		{Name: "node", Address: p.addr(), Subnets: []string{"10.1.0.0/16"}},
	}})
	defer m.CloseConnections()

	m.RetryConnections()

	assert.NotPanics(t, m.DumpDeviceStats)
	assert.NotPanics(t, m.DumpConnections)
	assert.NotPanics(t, m.DumpNodes)
	assert.NotPanics(t, m.DumpEdges)
	assert.NotPanics(t, m.DumpSubnets)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "peer_127_0_0_1_4000", "peer_"+sanitize("127.0.0.1:4000"))
	assert.Equal(t, "___1__80", sanitize("[::1]:80"))
}
