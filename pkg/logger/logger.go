// Package logger 提供 meshd 的日志输出
//
// 所有模块通过 Logging(name) 获取带名字的 SugaredLogger。
// 底层输出目标（标准错误、日志文件、syslog）可以在运行时通过 Open/Close 切换，
// 已经获取的 logger 无需重新创建。
package logger

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"sync"
	"sync/atomic"

	"meshd/pkg/utils/constants"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Mode 日志输出目标
type Mode int

const (
	ModeStderr Mode = iota
	ModeFile
	ModeSyslog
)

func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeSyslog:
		return "syslog"
	default:
		return "stderr"
	}
}

// Options 日志文件的轮转参数，仅 ModeFile 使用
type Options struct {
	FilePath     string
	FileSize     int
	FileCompress bool
	MaxAge       int
	MaxBackups   int
}

var (
	mu      sync.Mutex
	closer  io.Closer
	current atomic.Pointer[zapcore.Core]
	level   = zap.NewAtomicLevelAt(zap.InfoLevel)
	root    *zap.Logger
)

func init() {
	core := stderrCore()
	current.Store(&core)
	root = zap.New(&swapCore{}, zap.AddCaller())
}

// Logging 返回指定名字的 logger
func Logging(name string) *zap.SugaredLogger {
	return root.Named(name).Sugar()
}

// Open 打开指定模式的日志输出，之前打开的输出会先被关闭
func Open(identity string, mode Mode, opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	var core zapcore.Core
	switch mode {
	case ModeFile:
		if opts.FilePath == "" {
			opts.FilePath = constants.DaemonLogFilePath
		}
		lj := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.FileSize,
			MaxAge:     opts.MaxAge,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.FileCompress,
		}
		closer = lj
		core = zapcore.NewCore(fileEncoder(), zapcore.AddSync(lj), zapcore.DebugLevel)
	case ModeSyslog:
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, identity)
		if err != nil {
			return fmt.Errorf("cannot open syslog: %w", err)
		}
		closer = w
		core = newSyslogCore(syslogEncoder(), w, zapcore.DebugLevel)
	default:
		core = stderrCore()
	}

	core = core.With([]zapcore.Field{zap.String("ident", identity)})
	current.Store(&core)

	return nil
}

// Close 刷新并关闭当前日志输出，之后的日志回落到标准错误
func Close() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	core := stderrCore()
	current.Store(&core)
}

func closeLocked() {
	_ = (*current.Load()).Sync()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
}

// Sync 刷新当前输出
func Sync() error {
	return (*current.Load()).Sync()
}

// SetDebugLevel 将数值调试级别映射到 zap 日志级别
func SetDebugLevel(debugLevel int) {
	if debugLevel >= constants.DebugConnections {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.InfoLevel)
	}
}

// Level 返回当前生效的 zap 日志级别
func Level() zapcore.Level {
	return level.Level()
}

func stderrCore() zapcore.Core {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), zapcore.DebugLevel)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zapcore.NewConsoleEncoder(cfg)
}

func syslogEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zapcore.NewConsoleEncoder(cfg)
}
