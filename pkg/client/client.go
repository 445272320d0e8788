// Package client 提供控制 socket 客户端的高级封装
//
// 本包封装了与运行中的 meshd 通信的细节，cmd 层只需要调用这里的函数。
package client

import (
	"meshd/pkg/codec"
	"meshd/pkg/supervisor"
)

// Status 查询运行中的 meshd 的状态
//
// 参数：
//
//	socket: 控制 socket 路径
//
// 返回：
//
//	*codec.StatusInfo: 进程 PID、阶段、故障状态和调试级别
//	error: 连接失败或服务端返回错误
func Status(socket string) (*codec.StatusInfo, error) {
	res, err := supervisor.ClientRun(socket, &codec.ActionMsg{Action: codec.ActionStatus})
	if err != nil {
		return nil, err
	}

	return res.Status, nil
}

// Reload 请求重新加载配置，效果与发送 SIGHUP 相同
//
// 请求只设置延迟标志，返回时重载可能还没有执行。
func Reload(socket string) (string, error) {
	return request(socket, codec.ActionReload)
}

// Purge 请求清理不可达节点，效果与发送 SIGWINCH 相同
func Purge(socket string) (string, error) {
	return request(socket, codec.ActionPurge)
}

func request(socket string, action codec.ActionCtl) (string, error) {
	res, err := supervisor.ClientRun(socket, &codec.ActionMsg{Action: action})
	if err != nil {
		return "", err
	}

	return res.Message, nil
}
