package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore is a tee core: every entry goes to the wrapped core and to the
// async DB writer.
type DBCore struct {
	zapcore.Core
	writer *DBLogWriter
	fields []zapcore.Field
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:   baseCore,
		writer: writer,
	}
}

// With keeps the DB tee on child loggers and remembers their fields so
// job_id set via logger.With still reaches the DB.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &DBCore{
		Core:   c.Core.With(fields),
		writer: c.writer,
		fields: merged,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	jobID, _ := enc.Fields["job_id"].(string)
	configID, _ := enc.Fields["config_id"].(string)
	delete(enc.Fields, "job_id")
	delete(enc.Fields, "config_id")

	// Caller.Function is only filled when the logger is built with AddCaller.
	c.writer.AddLog(LogEntry{
		Level:    entry.Level,
		Message:  entry.Message,
		JobID:    jobID,
		ConfigID: configID,
		Caller:   entry.Caller.Function,
		Fields:   enc.Fields,
		Time:     entry.Time,
	})

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
