package middleware

import (
	"net"
	"net/http"
	"sync"

	"github.com/MrEthical07/authcore"
)

// ClientIPFunc extracts the caller address from a request.
type ClientIPFunc func(r *http.Request) string

// RemoteIP returns the host part of r.RemoteAddr. Put a proxy-aware middleware
// such as chi's RealIP in front when running behind a load balancer.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Attach creates the request's AuthContext. Cookies issued or cleared by the
// handler are added to the response when the header is first written.
func Attach(engine *authcore.Engine, clientIP ClientIPFunc) func(http.Handler) http.Handler {
	if clientIP == nil {
		clientIP = RemoteIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ac := engine.NewContext(authcore.RequestFromHTTP(r, ip))

			ctx := authcore.WithAuthContext(r.Context(), ac)
			ctx = authcore.WithClientIP(ctx, ip)
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())

			cw := &cookieWriter{ResponseWriter: w, ac: ac}
			next.ServeHTTP(cw, r.WithContext(ctx))
			cw.flush()
		})
	}
}

// WriteCookies adds every cookie ac produced to w. Call it before the header is
// written when not using Attach.
func WriteCookies(w http.ResponseWriter, ac *authcore.AuthContext) {
	for _, c := range ac.Cookies() {
		http.SetCookie(w, c)
	}
}

type cookieWriter struct {
	http.ResponseWriter
	ac   *authcore.AuthContext
	once sync.Once
}

func (w *cookieWriter) flush() {
	w.once.Do(func() { WriteCookies(w.ResponseWriter, w.ac) })
}

func (w *cookieWriter) WriteHeader(status int) {
	w.flush()
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
