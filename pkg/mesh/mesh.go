// Package mesh 是 meshd 的网络层
//
// 只维护节点表和 TCP 元连接，不实现任何隧道协议。
// 节点分两类：配置文件中声明的节点，以及通过入站连接学习到的节点。
// 学习到的节点在断开之后变为不可达，可以被 PurgeUnreachable 清理。
package mesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meshd/pkg/config"
	"meshd/pkg/logger"
)

const dialTimeout = 3 * time.Second

// Node 节点表中的一项
type Node struct {
	Name       string
	Address    string
	Subnets    []string
	Configured bool
	conn       *Conn
}

// Reachable 节点当前是否有活动连接
func (n Node) Reachable() bool {
	return n.conn != nil
}

// Mesh 实现 supervisor.Network
type Mesh struct {
	mu       sync.Mutex
	name     string
	listen   string
	listener net.Listener
	nodes    *orderedmap.OrderedMap[string, *Node]
	stats    Stats
	dial     func(ctx context.Context, address string) (net.Conn, error)
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

// New 根据配置创建节点表，不会建立任何连接
func New(cfg *config.Config) *Mesh {
	m := &Mesh{
		name:   cfg.Identity(),
		listen: cfg.Listen,
		nodes:  orderedmap.New[string, *Node](),
		logger: logger.Logging("mesh"),
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		},
	}

	for _, n := range cfg.Nodes {
		m.nodes.Set(n.Name, &Node{
			Name:       n.Name,
			Address:    n.Address,
			Subnets:    append([]string(nil), n.Subnets...),
			Configured: true,
		})
	}

	return m
}

// Listen 在配置的地址上接受入站连接，没有配置 listen 时什么也不做
func (m *Mesh) Listen() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listenLocked()
}

func (m *Mesh) listenLocked() error {
	if m.listen == "" || m.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", m.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.listen, err)
	}

	m.listener = ln
	m.logger.Infof("Listening on %s", ln.Addr())

	m.wg.Add(1)
	go m.accept(ln)

	return nil
}

// Addr 返回监听地址，没有监听时返回 nil
func (m *Mesh) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener == nil {
		return nil
	}

	return m.listener.Addr()
}

func (m *Mesh) accept(ln net.Listener) {
	defer m.wg.Done()

	for {
		c, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.logger.Errorf("Accept failed: %v", err)
			}
			return
		}

		m.attachIncoming(ln, c)
	}
}

func (m *Mesh) attachIncoming(ln net.Listener, c net.Conn) {
	name := "peer_" + sanitize(c.RemoteAddr().String())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener != ln {
		_ = c.Close()
		return
	}

	node, ok := m.nodes.Get(name)
	if !ok {
		node = &Node{Name: name, Address: c.RemoteAddr().String()}
		m.nodes.Set(name, node)
	}

	if node.conn != nil {
		m.stats.add(node.conn)
		_ = node.conn.Close()
	}

	node.conn = newConn(c, false)
	m.stats.Accepted++
	go m.watch(name, node.conn)

	m.logger.Infof("Connection from %s (%s)", name, node.Address)
}

// watch 读取连接直到对端关闭或出错，然后把节点标记为不可达
//
// 连接已经被 CloseConnections 或 Reload 替换时什么也不做。
func (m *Mesh) watch(name string, c *Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := c.Read(buf); err != nil {
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes.Get(name)
	if !ok || node.conn != c {
		return
	}

	m.stats.add(c)
	_ = c.Close()
	node.conn = nil

	m.logger.Infof("Connection with %s (%s) closed", name, node.Address)
}

// Nodes 按插入顺序返回节点表的快照
func (m *Mesh) Nodes() []Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Node, 0, m.nodes.Len())
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}

	return out
}

// RetryConnections 并发连接所有没有活动连接的配置节点
func (m *Mesh) RetryConnections() {
	m.mu.Lock()
	if err := m.listenLocked(); err != nil {
		m.logger.Error(err)
	}

	var pending []*Node
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.Configured && n.conn == nil && n.Address != "" {
			pending = append(pending, n)
		}
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, n := range pending {
		g.Go(func() error {
			m.connect(ctx, n.Name, n.Address)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Mesh) connect(ctx context.Context, name, address string) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	m.logger.Debugf("Trying to connect to %s (%s)", name, address)

	c, err := m.dial(ctx, address)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.stats.DialFailed++
		m.logger.Infof("Could not connect to %s (%s): %v", name, address, err)
		return
	}

	node, ok := m.nodes.Get(name)
	if !ok || node.conn != nil || node.Address != address {
		// 节点在拨号期间被重载删除或已经连上
		_ = c.Close()
		return
	}

	node.conn = newConn(c, true)
	m.stats.Dialed++
	go m.watch(name, node.conn)
	m.logger.Infof("Connected to %s (%s)", name, address)
}

// CloseConnections 关闭监听和所有连接，节点表保留
func (m *Mesh) CloseConnections() {
	m.mu.Lock()

	var err error
	if m.listener != nil {
		err = multierr.Append(err, m.listener.Close())
		m.listener = nil
	}

	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.conn != nil {
			m.stats.add(n.conn)
			err = multierr.Append(err, n.conn.Close())
			n.conn = nil
		}
	}
	m.mu.Unlock()

	m.wg.Wait()

	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, net.ErrClosed) {
			m.logger.Debugf("Close failed: %v", e)
		}
	}
}

// PurgeUnreachable 删除不可达的学习节点，配置节点永远保留
func (m *Mesh) PurgeUnreachable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged []string
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if !n.Configured && !n.Reachable() {
			purged = append(purged, n.Name)
		}
	}

	for _, name := range purged {
		m.nodes.Delete(name)
		m.logger.Debugf("Purged unreachable node %s", name)
	}

	m.logger.Infof("Purged %d unreachable nodes", len(purged))
}

// Reload 用新的配置更新节点表
//
// 删除的配置节点和地址变化的配置节点会断开连接；listen 地址变化时重新监听。
// 新的连接在下一次 RetryConnections 时建立。
func (m *Mesh) Reload(cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.name = cfg.Identity()

	wanted := make(map[string]config.Node, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		wanted[n.Name] = n
	}

	var removed []string
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if !n.Configured {
			continue
		}

		w, ok := wanted[n.Name]
		if !ok {
			removed = append(removed, n.Name)
			continue
		}

		if w.Address != n.Address && n.conn != nil {
			m.stats.add(n.conn)
			_ = n.conn.Close()
			n.conn = nil
		}
		n.Address = w.Address
		n.Subnets = append([]string(nil), w.Subnets...)
	}

	for _, name := range removed {
		n, _ := m.nodes.Delete(name)
		if n != nil && n.conn != nil {
			m.stats.add(n.conn)
			_ = n.conn.Close()
		}
	}

	for _, n := range cfg.Nodes {
		if _, ok := m.nodes.Get(n.Name); ok {
			continue
		}
		m.nodes.Set(n.Name, &Node{
			Name:       n.Name,
			Address:    n.Address,
			Subnets:    append([]string(nil), n.Subnets...),
			Configured: true,
		})
	}

	var err error
	if cfg.Listen != m.listen {
		if m.listener != nil {
			_ = m.listener.Close()
			m.listener = nil
		}
		m.listen = cfg.Listen
		err = m.listenLocked()
	}

	m.logger.Infof("Reloaded node table: %d nodes, %d removed", m.nodes.Len(), len(removed))

	return err
}
