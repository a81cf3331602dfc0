package telemetry

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// Core returns a zap core that sends error-level entries to Sentry once Init
// succeeded. Tee it next to the process core.
func (c *Client) Core() zapcore.Core {
	return &sentryCore{client: c}
}

type sentryCore struct {
	client *Client
	fields []zapcore.Field
}

func (s *sentryCore) Enabled(level zapcore.Level) bool {
	return level >= zapcore.ErrorLevel && s.client.Enabled()
}

func (s *sentryCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(s.fields)+len(fields))
	merged = append(merged, s.fields...)
	merged = append(merged, fields...)
	return &sentryCore{client: s.client, fields: merged}
}

func (s *sentryCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(e.Level) {
		return ce.AddCore(e, s)
	}
	return ce
}

func (s *sentryCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	if e.Level >= zapcore.DPanicLevel {
		event.Level = sentry.LevelFatal
	}
	event.Message = e.Message
	event.Logger = e.LoggerName
	event.Timestamp = e.Time

	enc := zapcore.NewMapObjectEncoder()
	all := make([]zapcore.Field, 0, len(s.fields)+len(fields))
	all = append(all, s.fields...)
	all = append(all, fields...)
	for _, f := range all {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && err != nil {
				event.Exception = append(event.Exception, sentry.Exception{
					Type:  fmt.Sprintf("%T", err),
					Value: err.Error(),
				})
				continue
			}
		}
		f.AddTo(enc)
	}

	event.Extra = enc.Fields
	if e.Caller.Defined {
		event.Extra["caller"] = e.Caller.TrimmedPath()
	}

	sentry.CaptureEvent(event)
	return nil
}

// Sync is a no-op; Flush delivers queued events.
func (s *sentryCore) Sync() error { return nil }
