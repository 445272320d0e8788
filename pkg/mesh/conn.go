package mesh

import (
	"net"
	"strings"
	"sync/atomic"
	"time"
)

// Conn 记录收发字节数的元连接
type Conn struct {
	net.Conn
	Outgoing bool
	Since    time.Time
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

func newConn(c net.Conn, outgoing bool) *Conn {
	return &Conn{
		Conn:     c,
		Outgoing: outgoing,
		Since:    time.Now(),
	}
}

func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesIn.Add(uint64(n))
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesOut.Add(uint64(n))
	return n, err
}

// Stats 设备统计，关闭的连接的字节数累加到这里
type Stats struct {
	Accepted   uint64
	Dialed     uint64
	DialFailed uint64
	BytesIn    uint64
	BytesOut   uint64
}

func (s *Stats) add(c *Conn) {
	s.BytesIn += c.bytesIn.Load()
	s.BytesOut += c.bytesOut.Load()
}

// sanitize 把地址转换成合法的节点名
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
