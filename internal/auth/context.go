package auth

import "context"

type callerTokenKey struct{}

// WithCallerToken stores the caller's raw bearer token on the context
// so downstream workflow calls can relay it.
func WithCallerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, callerTokenKey{}, token)
}

// CallerToken returns the stored bearer token, or "" when the context
// did not pass through request authentication.
func CallerToken(ctx context.Context) string {
	tok, _ := ctx.Value(callerTokenKey{}).(string)
	return tok
}
