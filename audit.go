package authcore

import (
	"io"

	"github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant engine outcome.
type AuditEvent = audit.Event

// AuditKind names an audit event.
type AuditKind = audit.Kind

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
	AuditSinkFunc  = audit.SinkFunc
	MultiAuditSink = audit.MultiSink
)

// NewChannelSink buffers events in a channel read through Events().
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapAuditSink logs events through l.
func NewZapAuditSink(l *zap.Logger) *ZapSink {
	return audit.NewZapSink(l)
}
