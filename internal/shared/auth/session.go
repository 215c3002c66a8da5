package auth

import "context"

// Session identifies the authenticated caller of a request. It is placed in
// the request context by the auth middleware and passed explicitly to every
// domain service call.
type Session struct {
	UserID string
	Email  string
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored in ctx, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}
