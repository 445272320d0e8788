package config

// 命令行标志，由 cmd 包绑定，SetConfig 加载完成后覆盖配置文件中的值
var (
	ConfigFileFlag string
	ForegroundFlag bool
	DebugLevelFlag = -1
	NetNameFlag    string
	PidFileFlag    string
	LogFileFlag    string
)
