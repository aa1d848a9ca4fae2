package guard

import (
	"context"

	"github.com/google/uuid"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext sets the resolved Session in the given context
func WithSessionContext(r context.Context, session *Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok
}

// UserIDFromContext returns the user the request's session is bound to
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session == nil {
		return uuid.Nil, false
	}
	return session.UserID, true
}
