package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/internal/logger"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestLogger logs one line per request and stores a request-scoped logger
// in the context.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			l := base.With(logger.RequestID(chimiddleware.GetReqID(r.Context())))
			next.ServeHTTP(ww, r.WithContext(logger.ToContext(r.Context(), l)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(status),
				logger.Duration(time.Since(start)),
				logger.ClientIP(r.RemoteAddr),
			}
			if status >= http.StatusInternalServerError {
				l.Warn("request", fields...)
				return
			}
			l.Debug("request", fields...)
		})
	}
}
