package supervisor

import (
	"fmt"
	"net"
	"time"

	"meshd/pkg/codec"
)

// ClientRun 连接控制 socket 发送一个请求并等待响应
func ClientRun(socket string, msg *codec.ActionMsg) (*codec.ResponseMsg, error) {
	conn, err := net.DialTimeout("unix", socket, sessionTimeout)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetDeadline(time.Now().Add(sessionTimeout))

	if err = codec.WriteFrame(conn, msg); err != nil {
		return nil, err
	}

	res := new(codec.ResponseMsg)
	if err = codec.ReadFrame(conn, res); err != nil {
		return nil, err
	}

	if res.Code != 200 {
		return res, fmt.Errorf("%d %s", res.Code, res.Message)
	}

	return res, nil
}
