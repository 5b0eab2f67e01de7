package logger

import (
	"time"

	"go.uber.org/zap"
)

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field       { return zap.String("user_agent", v) }
func UserID(v string) zap.Field          { return zap.String("user_id", v) }

// SessionHash logs a shortened fingerprint hash.
func SessionHash(v string) zap.Field {
	if len(v) > 12 {
		v = v[:12]
	}
	return zap.String("session", v)
}

// Op names the engine operation being logged.
func Op(v string) zap.Field { return zap.String("op", v) }

func Component(v string) zap.Field { return zap.String("component", v) }
