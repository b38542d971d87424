package auth

import "context"

type ctxKey struct{}

// WithLogin records the authenticated login on ctx.
func WithLogin(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, ctxKey{}, login)
}

// LoginFromContext returns the authenticated login, or "" for unauthenticated requests.
func LoginFromContext(ctx context.Context) string {
	login, _ := ctx.Value(ctxKey{}).(string)
	return login
}
