package logger

import (
	"go.uber.org/zap/zapcore"
)

// swapCore 把写入转发给当前打开的输出目标，级别由全局 level 控制
type swapCore struct {
	fields []zapcore.Field
}

func (c *swapCore) Enabled(l zapcore.Level) bool {
	return level.Enabled(l)
}

func (c *swapCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)

	return &swapCore{fields: merged}
}

func (c *swapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

func (c *swapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	core := *current.Load()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}

	return core.Write(ent, fields)
}

func (c *swapCore) Sync() error {
	return (*current.Load()).Sync()
}
