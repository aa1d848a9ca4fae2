package guard

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenManager binds the token store to the domain flows: it issues typed
// challenges, hands the raw value to the mailer, and never retains or logs
// the plaintext beyond that handoff.
type TokenManager struct {
	vault  TokenVault
	mailer Mailer
	cfg    Config
	logger Logger
}

// NewTokenManager creates a manager with a noop mailer and default logger
func NewTokenManager(vault TokenVault, cfg Config) *TokenManager {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	return &TokenManager{
		vault:  vault,
		mailer: noopMailer{},
		cfg:    cfg,
		logger: defLogger{},
	}
}

// WithMailer sets the mail delivery collaborator
func (m *TokenManager) WithMailer(mailer Mailer) *TokenManager {
	if mailer != nil {
		m.mailer = mailer
	}
	return m
}

// WithLogger overrides the logger used by the manager
func (m *TokenManager) WithLogger(logger Logger) *TokenManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// SendVerification issues an EMAIL_VERIFY token and mails it
func (m *TokenManager) SendVerification(ctx context.Context, user *User) error {
	token, err := m.issue(ctx, user, TokenEmailVerify)
	if err != nil {
		return err
	}

	if err := m.mailer.SendVerificationToken(ctx, user.Email, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver verification token")
	}

	m.logger.Info("verification token issued", "user", user.ID.String())
	return nil
}

// SendPasswordReset issues a PASSWORD_RESET token and mails it with the
// requesting device summary
func (m *TokenManager) SendPasswordReset(ctx context.Context, user *User, meta SessionMetadata) error {
	token, err := m.issue(ctx, user, TokenPasswordReset)
	if err != nil {
		return err
	}

	if err := m.mailer.SendPasswordResetToken(ctx, user.Email, token, meta); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver password reset token")
	}

	m.logger.Info("password reset token issued", "user", user.ID.String())
	return nil
}

// SendPasswordChangeChallenge issues a PASSWORD_CHANGE PIN and mails it
func (m *TokenManager) SendPasswordChangeChallenge(ctx context.Context, user *User, meta SessionMetadata) error {
	token, err := m.issue(ctx, user, TokenPasswordChange)
	if err != nil {
		return err
	}

	if err := m.mailer.SendPasswordChangeToken(ctx, user.Email, token, meta); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver password change token")
	}

	m.logger.Info("password change challenge issued", "user", user.ID.String())
	return nil
}

// SendDeactivationChallenge issues a DEACTIVATE_ACCOUNT PIN and mails it
func (m *TokenManager) SendDeactivationChallenge(ctx context.Context, user *User, meta SessionMetadata) error {
	token, err := m.issue(ctx, user, TokenDeactivateAccount)
	if err != nil {
		return err
	}

	if err := m.mailer.SendDeactivationToken(ctx, user.Email, token, meta); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver deactivation token")
	}

	m.logger.Info("deactivation challenge issued", "user", user.ID.String())
	return nil
}

// Confirm consumes the token exactly once and returns the owning user id.
// Already used and never issued both come back as ErrTokenNotFound.
func (m *TokenManager) Confirm(ctx context.Context, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return uuid.Nil, ErrNoEmptyToken
	}

	userID, err := m.vault.Consume(ctx, tokenValue, kind)
	if err != nil {
		if goerrors.Is(err, ErrTokenNotFound) || goerrors.Is(err, ErrTokenExpired) {
			return uuid.Nil, err
		}
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm token")
	}

	return userID, nil
}

// ConfirmFor consumes a token on behalf of a known user. The lookup is
// scoped to that user, so a value issued to somebody else reads as not found
// and stays live for its owner. PIN challenges, whose short values are
// guessable, confirm through this path.
func (m *TokenManager) ConfirmFor(ctx context.Context, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return uuid.Nil, ErrNoEmptyToken
	}

	owner, err := m.vault.ConsumeFor(ctx, userID, tokenValue, kind)
	if err != nil {
		if goerrors.Is(err, ErrTokenNotFound) || goerrors.Is(err, ErrTokenExpired) {
			return uuid.Nil, err
		}
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm token")
	}

	return owner, nil
}

func (m *TokenManager) issue(ctx context.Context, user *User, kind TokenKind) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", goerrors.New("token issuance requires a user", goerrors.CategoryBadInput)
	}

	if !m.cfg.GetReplaceActiveChallenge() {
		if _, err := m.vault.Active(ctx, user.ID, kind); err == nil {
			return "", ErrDuplicateChallenge
		} else if !goerrors.Is(err, ErrTokenNotFound) {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check active challenge")
		}
	}

	token, err := m.vault.Issue(ctx, user.ID, kind, m.cfg.GetTokenTTL(kind))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue token")
	}

	return token.Token, nil
}
