package guard

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionManager orchestrates session creation at sign in, validation on
// every gated request, the active devices view, and revocation.
type SessionManager struct {
	registry SessionRegistry
	resolver *MetadataResolver
	cfg      Config
	logger   Logger
}

// NewSessionManager creates a manager with default metadata resolution
func NewSessionManager(registry SessionRegistry, cfg Config) *SessionManager {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	return &SessionManager{
		registry: registry,
		resolver: NewMetadataResolver(nil),
		cfg:      cfg,
		logger:   defLogger{},
	}
}

// WithMetadataResolver overrides the resolver, e.g. to attach geolocation
func (m *SessionManager) WithMetadataResolver(resolver *MetadataResolver) *SessionManager {
	if resolver != nil {
		m.resolver = resolver
	}
	return m
}

// WithLogger overrides the logger used by the manager
func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// CreateSession registers a fresh session for a successfully authenticated
// user and returns it; the caller hands Session.ID to the transport layer.
func (m *SessionManager) CreateSession(ctx context.Context, userID uuid.UUID, rawUserAgent, sourceIP string) (*Session, error) {
	if userID == uuid.Nil {
		return nil, goerrors.New("session creation requires a user id", goerrors.CategoryBadInput)
	}

	meta := m.resolver.Resolve(ctx, rawUserAgent, sourceIP)
	session := NewSession(userID, meta)

	if err := m.registry.Put(ctx, session, m.cfg.GetSessionTTL()); err != nil {
		return nil, err
	}

	m.logger.Info("session created", "user", userID.String(), "device", meta.Device.Browser)
	return session, nil
}

// Validate confirms the session is live. Absent covers both "never existed"
// and "expired via TTL". With sliding expiry enabled a successful
// validation pushes the TTL forward.
func (m *SessionManager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	session, err := m.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if m.cfg.GetSlidingSessions() {
		if err := m.registry.Refresh(ctx, sessionID, m.cfg.GetSessionTTL()); err != nil {
			// the session vanished between get and refresh, treat as gone
			if goerrors.Is(err, ErrSessionNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
	}

	return session, nil
}

// ListDevices returns the user's active sessions for display
func (m *SessionManager) ListDevices(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	return m.registry.ListByUser(ctx, userID)
}

// Revoke removes a single session. The ownership check (a user may only
// revoke their own sessions) happens one layer up, in the gate.
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionNotFound
	}
	return m.registry.Delete(ctx, sessionID)
}

// RevokeAllExcept invalidates every other device of the user. An empty keep
// id revokes all of them, used by account deactivation.
func (m *SessionManager) RevokeAllExcept(ctx context.Context, userID uuid.UUID, keepSessionID string) error {
	if userID == uuid.Nil {
		return goerrors.New("bulk revoke requires a user id", goerrors.CategoryBadInput)
	}
	return m.registry.DeleteAllForUserExcept(ctx, userID, keepSessionID)
}
