package supervisor

import (
	"errors"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"meshd/pkg/logger"
)

// ctlServer 控制 socket 服务端，每个连接处理一个请求
type ctlServer struct {
	sv     *Supervisor
	wg     sync.WaitGroup
	sock   net.Listener
	done   chan struct{}
	logger *zap.SugaredLogger
}

func (s *ctlServer) Listen() {
	defer close(s.done)

	for {
		conn, err := s.sock.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error(err)
			continue
		}

		session := NewSession(s.sv, conn)

		s.wg.Add(1)
		go func(se *CtlSession) {
			defer s.wg.Done()
			se.Handle()
		}(session)
	}

	s.wg.Wait()
	s.logger.Debug("Control server is stopped")
}

// startServer 在配置的 socket 路径上启动控制服务，失败时只记录日志
func (sv *Supervisor) startServer() {
	if sv.socket == "" {
		return
	}

	// 已经持有单实例锁，残留的 socket 文件一定来自之前的实例
	_ = os.Remove(sv.socket)

	socket, err := net.Listen("unix", sv.socket)
	if err != nil {
		sv.logger.Errorf("Cannot listen on control socket %s: %v", sv.socket, err)
		return
	}

	server := &ctlServer{
		sv:     sv,
		sock:   socket,
		done:   make(chan struct{}),
		logger: logger.Logging("meshd-ctl"),
	}

	sv.mu.Lock()
	sv.server = server
	sv.mu.Unlock()

	go server.Listen()
}

func (sv *Supervisor) stopServer() {
	sv.mu.Lock()
	server := sv.server
	sv.server = nil
	sv.mu.Unlock()

	if server == nil {
		return
	}

	_ = server.sock.Close()
	<-server.done
	_ = os.Remove(sv.socket)
}
