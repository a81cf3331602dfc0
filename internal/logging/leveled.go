package logging

import "go.uber.org/zap"

// Leveled adapts a zap logger to the key/value leveled logger interface used
// by retryablehttp.
type Leveled struct {
	s *zap.SugaredLogger
}

func NewLeveled(logger *zap.Logger) *Leveled {
	return &Leveled{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

// Info is demoted: retryablehttp reports every attempt at info.
func (l *Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
