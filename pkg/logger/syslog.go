package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// syslogWriter 是 *syslog.Writer 中按优先级写入的部分
type syslogWriter interface {
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
	Crit(m string) error
}

// syslogCore 按日志级别选择 syslog 优先级写入
type syslogCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	w   syslogWriter
}

func newSyslogCore(enc zapcore.Encoder, w syslogWriter, enab zapcore.LevelEnabler) zapcore.Core {
	return &syslogCore{LevelEnabler: enab, enc: enc, w: w}
}

func (c *syslogCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &syslogCore{LevelEnabler: c.LevelEnabler, enc: c.enc.Clone(), w: c.w}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}

	return clone
}

func (c *syslogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

func (c *syslogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}

	msg := strings.TrimSuffix(buf.String(), "\n")
	buf.Free()

	switch ent.Level {
	case zapcore.DebugLevel:
		return c.w.Debug(msg)
	case zapcore.InfoLevel:
		return c.w.Info(msg)
	case zapcore.WarnLevel:
		return c.w.Warning(msg)
	case zapcore.ErrorLevel:
		return c.w.Err(msg)
	default:
		return c.w.Crit(msg)
	}
}

func (c *syslogCore) Sync() error {
	return nil
}
