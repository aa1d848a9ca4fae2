package guard

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// Gate guards every sensitive operation: it confirms the request's session
// is live and bound to a user before any downstream handler runs. It fails
// closed: a store outage denies with a distinct service unavailable error,
// never a silent pass through and never a fake "not authenticated".
type Gate struct {
	sessions     *SessionManager
	cfg          Config
	logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewGate creates a gate over the session manager
func NewGate(sessions *SessionManager, cfg Config) *Gate {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	g := &Gate{
		sessions: sessions,
		cfg:      cfg,
		logger:   defLogger{},
	}
	g.ErrorHandler = g.defaultErrHandler
	return g
}

// WithLogger overrides the logger used by the gate
func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Authorize resolves "is this session currently valid". Expired and never
// logged in collapse into the same uniform denial; an unreachable registry
// surfaces as ErrStoreUnavailable so callers can retry with backoff.
func (g *Gate) Authorize(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrAuthenticationRequired
	}

	session, err := g.sessions.Validate(ctx, sessionID)
	if err != nil {
		if IsStoreUnavailable(err) {
			g.logger.Error("gate denied request, session store unreachable")
			return nil, err
		}
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to authorize session")
	}

	return session, nil
}

// Protected returns a middleware that authorizes the request and attaches
// the resolved session to both the router locals and the standard context.
func (g *Gate) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, err := g.Authorize(ctx.Context(), g.extractSessionID(ctx))
			if err != nil {
				return g.ErrorHandler(ctx, err)
			}

			ctx.Locals(g.cfg.GetSessionContextKey(), session)
			ctx.SetContext(WithSessionContext(ctx.Context(), session))

			return hf(ctx)
		}
	}
}

// GetRouterSession retrieves the session the gate attached to the request
func GetRouterSession(c router.Context, key string) (*Session, error) {
	if key == "" {
		key = "session"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrAuthenticationRequired
	}
	session, ok := raw.(*Session)
	if !ok || session == nil {
		return nil, ErrAuthenticationRequired
	}
	return session, nil
}

func (g *Gate) extractSessionID(ctx router.Context) string {
	if id := ctx.Cookies(g.cfg.GetSessionCookieName()); id != "" {
		return id
	}
	return ctx.GetString(g.cfg.GetSessionHeaderName(), "")
}

func (g *Gate) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "authentication required").
			WithCode(errors.CodeUnauthorized)
	}

	status := router.StatusUnauthorized
	if IsStoreUnavailable(err) {
		status = router.StatusServiceUnavailable
	}

	g.logger.Info(
		"gate rejected request",
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return c.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
