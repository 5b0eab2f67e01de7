package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink writes events as structured log entries. Failed events are logged at
// warn level, the rest at info.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a sink logging through l under the "audit" name.
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{logger: l.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := make([]zap.Field, 0, 8+len(event.Metadata))
	fields = append(fields,
		zap.Time("ts", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Session != "" {
		fields = append(fields, zap.String("session", event.Session))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.logger.Info(string(event.Kind), fields...)
		return
	}
	s.logger.Warn(string(event.Kind), fields...)
}
