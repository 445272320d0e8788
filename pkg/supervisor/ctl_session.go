package supervisor

import (
	"net"
	"time"

	"meshd/pkg/codec"
	"meshd/pkg/logger"

	"go.uber.org/zap"
)

const sessionTimeout = 5 * time.Second

type CtlSession struct {
	sv     *Supervisor
	conn   net.Conn
	logger *zap.SugaredLogger
}

func NewSession(s *Supervisor, c net.Conn) *CtlSession {
	return &CtlSession{
		sv:     s,
		conn:   c,
		logger: logger.Logging("meshd-serv"),
	}
}

// Handle 读取一个 ActionMsg 并写回 ResponseMsg
//
// 会话只读取控制器状态或设置延迟标志，真正的重载和清理仍然在主循环中执行。
func (se *CtlSession) Handle() {
	defer func() {
		_ = se.conn.Close()
	}()

	_ = se.conn.SetDeadline(time.Now().Add(sessionTimeout))

	var msg codec.ActionMsg
	if err := codec.ReadFrame(se.conn, &msg); err != nil {
		se.sendResponse(se.errorResponse(err))
		return
	}

	var res *codec.ResponseMsg

	switch msg.Action {
	case codec.ActionStatus:
		res = &codec.ResponseMsg{
			Code:    200,
			Message: codec.ActionResponse[msg.Action],
			Status:  se.sv.Status(),
		}
	case codec.ActionReload:
		se.sv.RequestReload()
		res = &codec.ResponseMsg{Code: 200, Message: codec.ActionResponse[msg.Action]}
	case codec.ActionPurge:
		se.sv.RequestPurge()
		res = &codec.ResponseMsg{Code: 200, Message: codec.ActionResponse[msg.Action]}
	default:
		res = &codec.ResponseMsg{Code: 404, Message: "Unknown action"}
	}

	se.sendResponse(res)
}

func (se *CtlSession) errorResponse(err error) *codec.ResponseMsg {
	se.logger.Error(err)
	return &codec.ResponseMsg{
		Code:    500,
		Message: err.Error(),
	}
}

func (se *CtlSession) sendResponse(res *codec.ResponseMsg) {
	if err := codec.WriteFrame(se.conn, res); err != nil {
		se.logger.Error(err)
	}
}
