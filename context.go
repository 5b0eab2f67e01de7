package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type authContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Engine-level operations
// without an AuthContext (password reset, invitations) use it for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAuthContext stores ac in ctx for handlers further down the chain.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthContextFrom returns the AuthContext stored by [WithAuthContext].
func AuthContextFrom(ctx context.Context) (*AuthContext, bool) {
	if ctx == nil {
		return nil, false
	}
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// originFromContext prefers the AuthContext request when one is attached.
func originFromContext(ctx context.Context) origin {
	if ac, ok := AuthContextFrom(ctx); ok {
		return ac.from
	}
	return origin{ip: clientIPFromContext(ctx), userAgent: userAgentFromContext(ctx)}
}
