package audit

import (
	"go.uber.org/zap"
)

// LogEmitter writes audit events to the service log at info level.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.Named("audit")}
}

func (l *LogEmitter) Emit(event *Event) {
	l.logger.Info("Audit event",
		zap.Time("time", event.Time),
		zap.String("action", event.Action),
		zap.String("domain", event.Domain),
		zap.String("result", event.Result),
		zap.String("request_id", event.RequestID),
		zap.String("client_ip", event.ClientIP))
}

func (l *LogEmitter) Close() error { return nil }
