package supervisor

import "meshd/pkg/config"

// Network 是生命周期控制器依赖的网络层
//
// 控制器不关心这些方法的实现细节，也不检查它们的执行结果（Reload 除外，仅用于记录日志）。
type Network interface {
	CloseConnections()

	DumpDeviceStats()
	DumpConnections()
	DumpNodes()
	DumpEdges()
	DumpSubnets()

	// Reload 在收到 HUP 后由主循环调用
	Reload(cfg *config.Config) error
	// RetryConnections 在收到 ALRM 或定时维护时由主循环调用
	RetryConnections()
	// PurgeUnreachable 在收到清理请求后由主循环调用
	PurgeUnreachable()
}
