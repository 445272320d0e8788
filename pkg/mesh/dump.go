package mesh

import (
	"time"
)

// DumpDeviceStats 输出连接计数和累计收发字节数
func (m *Mesh) DumpDeviceStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stats
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if c := pair.Value.conn; c != nil {
			st.add(c)
		}
	}

	m.logger.Infof("Statistics for %s:", m.name)
	m.logger.Infof(" accepted connections %d", st.Accepted)
	m.logger.Infof(" outgoing connections %d", st.Dialed)
	m.logger.Infof(" failed dials         %d", st.DialFailed)
	m.logger.Infof(" bytes in             %d", st.BytesIn)
	m.logger.Infof(" bytes out            %d", st.BytesOut)
}

func (m *Mesh) DumpConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Connections:")
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.conn == nil {
			continue
		}

		dir := "in"
		if n.conn.Outgoing {
			dir = "out"
		}

		m.logger.Infof(" %s at %s %s since %s", n.Name, n.conn.RemoteAddr(), dir,
			n.conn.Since.Format(time.RFC3339))
	}
	m.logger.Info("End of connections.")
}

func (m *Mesh) DumpNodes() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Nodes:")
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		m.logger.Infof(" %s at %s configured %t reachable %t", n.Name, n.Address, n.Configured, n.Reachable())
	}
	m.logger.Info("End of nodes.")
}

// DumpEdges 每个活动连接对应一条从本节点出发的边
func (m *Mesh) DumpEdges() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Edges:")
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.Reachable() {
			m.logger.Infof(" %s to %s at %s", m.name, n.Name, n.conn.RemoteAddr())
		}
	}
	m.logger.Info("End of edges.")
}

func (m *Mesh) DumpSubnets() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Subnet list:")
	for pair := m.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		for _, s := range n.Subnets {
			m.logger.Infof(" %s owner %s", s, n.Name)
		}
	}
	m.logger.Info("End of subnet list.")
}
