package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message plus alternating key/value pairs, the log/slog
// calling convention
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds token and session policy options
type Config interface {
	GetTokenTTL(kind TokenKind) time.Duration
	GetSessionTTL() time.Duration
	GetSlidingSessions() bool
	GetSessionCookieName() string
	GetSessionHeaderName() string
	GetSessionContextKey() string
	GetKeyPrefix() string
	GetReplaceActiveChallenge() bool
}

// TokenVault issues and consumes single use security tokens
type TokenVault interface {
	Issue(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (*SecurityToken, error)
	Consume(ctx context.Context, tokenValue string, kind TokenKind) (uuid.UUID, error)
	ConsumeFor(ctx context.Context, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error)
	Active(ctx context.Context, userID uuid.UUID, kind TokenKind) (*SecurityToken, error)
}

// SessionRegistry tracks live sessions in a volatile store with native expiry.
// Absence from the registry is the only notion of "expired".
type SessionRegistry interface {
	Put(ctx context.Context, session *Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUserExcept(ctx context.Context, userID uuid.UUID, keepSessionID string) error
	Refresh(ctx context.Context, sessionID string, ttl time.Duration) error
}

// Mailer delivers token values and notices out of band. The core hands it
// the plaintext token and a metadata summary, never a rendered body.
type Mailer interface {
	SendVerificationToken(ctx context.Context, email, token string) error
	SendPasswordResetToken(ctx context.Context, email, token string, meta SessionMetadata) error
	SendPasswordChangeToken(ctx context.Context, email, token string, meta SessionMetadata) error
	SendDeactivationToken(ctx context.Context, email, token string, meta SessionMetadata) error
	SendPasswordChangedNotice(ctx context.Context, email string, meta SessionMetadata) error
}

// UserStore is the durable record store collaborator. The core never owns
// the user schema; a reference bun implementation ships in repo_users.go.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type noopMailer struct{}

func (noopMailer) SendVerificationToken(context.Context, string, string) error { return nil }
func (noopMailer) SendPasswordResetToken(context.Context, string, string, SessionMetadata) error {
	return nil
}
func (noopMailer) SendPasswordChangeToken(context.Context, string, string, SessionMetadata) error {
	return nil
}
func (noopMailer) SendDeactivationToken(context.Context, string, string, SessionMetadata) error {
	return nil
}
func (noopMailer) SendPasswordChangedNotice(context.Context, string, SessionMetadata) error {
	return nil
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	slog.Error("GUARD "+msg, args...)
}

func (d defLogger) Info(msg string, args ...any) {
	slog.Info("GUARD "+msg, args...)
}

func (d defLogger) Debug(msg string, args ...any) {
	slog.Debug("GUARD "+msg, args...)
}
