package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DeliverFunc hands an issued one-time code to the notification layer.
type DeliverFunc func(ctx context.Context, c *authcore.IssuedCode) error

type Options struct {
	Logger *zap.Logger
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// AdminToken guards POST /v1/invitations. Empty disables the route.
	AdminToken string
	Deliver    DeliverFunc
	// RequestTimeout bounds every request; zero means 30s.
	RequestTimeout time.Duration
}

type api struct {
	engine  *authcore.Engine
	log     *zap.Logger
	deliver DeliverFunc
}

// NewRouter wires every engine operation onto a chi router.
func NewRouter(engine *authcore.Engine, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{engine: engine, log: log.Named("http"), deliver: opts.Deliver}
	if a.deliver == nil {
		a.deliver = a.logDelivery
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if opts.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(requestLogger(a.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/certificate", a.certificate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Attach(engine, middleware.RemoteIP))

			r.Post("/auth/signup", a.signup)
			r.Post("/auth/signin", a.signin)
			r.Post("/auth/sso/{provider}", a.sso)
			r.Post("/auth/refresh", a.refresh)
			r.Post("/auth/signout", a.signout)
			r.Post("/auth/password/reset/request", a.requestPasswordReset)
			r.Post("/auth/password/reset", a.resetPassword)
			r.Post("/auth/invitations/accept", a.acceptInvitation)

			r.Route("/me", func(r chi.Router) {
				r.Use(middleware.Require())
				r.Get("/", a.me)
				r.Get("/sessions", a.sessions)
				r.Delete("/sessions/{hash}", a.revokeSession)
				r.Post("/signout-all", a.signoutAll)
				r.Post("/password", a.changePassword)
				r.Post("/email/confirm/request", a.requestEmailConfirmation)
				r.Post("/email/confirm", a.confirmEmail)
			})

			if opts.AdminToken != "" {
				r.With(requireBearer(opts.AdminToken)).Post("/invitations", a.invite)
			}
		})
	})

	return r
}

func requireBearer(want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *api) logDelivery(ctx context.Context, c *authcore.IssuedCode) error {
	a.log.Info("one-time code issued",
		zap.String("request_id", chimiddleware.GetReqID(ctx)),
		zap.String("user_id", c.UserID),
		zap.String("kind", string(c.Kind)),
	)
	return nil
}
