package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the caller resolved by [Guard].
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok && id != nil
}

// Guard rejects requests whose caller cannot be resolved with opts. It must run
// after [Attach].
func Guard(opts authcore.GetUserOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := authcore.AuthContextFrom(r.Context())
			if !ok {
				WriteError(w, authcore.ErrInternal)
				return
			}

			id, err := ac.GetUser(r.Context(), opts)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require is Guard with strict resolution.
func Require() func(http.Handler) http.Handler {
	return Guard(authcore.GetUserOptions{})
}
