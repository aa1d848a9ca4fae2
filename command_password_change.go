package guard

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// The password change step up is a two state machine per operation:
// AwaitingChallenge -> Confirmed. The two requests are distinct message
// types rather than one message with an optional PIN, so the branch is
// explicit at the type level. There is no path back: a fresh challenge
// message always starts a new challenge.

type PasswordChangeChallengeMessage struct {
	UserID          uuid.UUID `json:"user_id" doc:"Authenticated user requesting the change."`
	CurrentPassword string    `json:"current_password" doc:"Password to re-verify before issuing the challenge."`
	UserAgent       string    `json:"user_agent"`
	IP              string    `json:"ip"`
}

func (m PasswordChangeChallengeMessage) Type() string { return "guard.password_change.challenge" }

func (m PasswordChangeChallengeMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CurrentPassword, validation.Required, validation.Length(1, 200)),
	)
}

type PasswordChangeChallengeHandler struct {
	users  UserStore
	tokens *TokenManager
	hasher PasswordAuthenticator
	meta   *MetadataResolver
	logger Logger
}

// NewPasswordChangeChallengeHandler creates a handler with sane defaults
func NewPasswordChangeChallengeHandler(users UserStore, tokens *TokenManager) *PasswordChangeChallengeHandler {
	return &PasswordChangeChallengeHandler{
		users:  users,
		tokens: tokens,
		hasher: BcryptAuthenticator{},
		meta:   NewMetadataResolver(nil),
		logger: defLogger{},
	}
}

// WithPasswordAuthenticator overrides the password hasher
func (h *PasswordChangeChallengeHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *PasswordChangeChallengeHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithMetadataResolver overrides the metadata resolver
func (h *PasswordChangeChallengeHandler) WithMetadataResolver(meta *MetadataResolver) *PasswordChangeChallengeHandler {
	if meta != nil {
		h.meta = meta
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *PasswordChangeChallengeHandler) WithLogger(logger Logger) *PasswordChangeChallengeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordChangeChallengeHandler) Execute(ctx context.Context, event PasswordChangeChallengeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change challenge",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordChangeChallengeHandler) execute(ctx context.Context, event PasswordChangeChallengeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if err := h.hasher.ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		return ErrMismatchedHashAndPassword
	}

	meta := h.meta.Resolve(ctx, event.UserAgent, event.IP)

	return h.tokens.SendPasswordChangeChallenge(ctx, user, meta)
}

type PasswordChangeConfirmMessage struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID string    `json:"session_id" doc:"Session making the request, kept alive through the bulk revoke."`
	PIN       string    `json:"pin" example:"493817" doc:"Numeric challenge from the password change mail."`
	Password  string    `json:"password" doc:"New password."`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
}

func (m PasswordChangeConfirmMessage) Type() string { return "guard.password_change.confirm" }

func (m PasswordChangeConfirmMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.PIN, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&m.Password, validation.Required, validation.Length(10, 100)),
	)
}

type PasswordChangeConfirmHandler struct {
	users    UserStore
	tokens   *TokenManager
	sessions *SessionManager
	mailer   Mailer
	hasher   PasswordAuthenticator
	meta     *MetadataResolver
	logger   Logger
}

// NewPasswordChangeConfirmHandler creates a handler with sane defaults
func NewPasswordChangeConfirmHandler(users UserStore, tokens *TokenManager, sessions *SessionManager) *PasswordChangeConfirmHandler {
	return &PasswordChangeConfirmHandler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		mailer:   noopMailer{},
		hasher:   BcryptAuthenticator{},
		meta:     NewMetadataResolver(nil),
		logger:   defLogger{},
	}
}

// WithMailer sets the mail delivery collaborator
func (h *PasswordChangeConfirmHandler) WithMailer(mailer Mailer) *PasswordChangeConfirmHandler {
	if mailer != nil {
		h.mailer = mailer
	}
	return h
}

// WithPasswordAuthenticator overrides the password hasher
func (h *PasswordChangeConfirmHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *PasswordChangeConfirmHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithMetadataResolver overrides the metadata resolver
func (h *PasswordChangeConfirmHandler) WithMetadataResolver(meta *MetadataResolver) *PasswordChangeConfirmHandler {
	if meta != nil {
		h.meta = meta
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *PasswordChangeConfirmHandler) WithLogger(logger Logger) *PasswordChangeConfirmHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordChangeConfirmHandler) Execute(ctx context.Context, event PasswordChangeConfirmMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordChangeConfirmHandler) execute(ctx context.Context, event PasswordChangeConfirmMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change confirmation")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// the consume is scoped to the requesting user: a PIN issued to a
	// different account reads as not found and stays live for its owner
	tokenOwner, err := h.tokens.ConfirmFor(ctx, event.UserID, event.PIN, TokenPasswordChange)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(ctx, tokenOwner)
	if err != nil {
		return err
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	if err := h.users.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	// every other device has to sign in again with the new password
	if err := h.sessions.RevokeAllExcept(ctx, user.ID, event.SessionID); err != nil {
		return err
	}

	meta := h.meta.Resolve(ctx, event.UserAgent, event.IP)
	if err := h.mailer.SendPasswordChangedNotice(ctx, user.Email, meta); err != nil {
		h.logger.Error("failed to deliver password change notice", "error", err)
	}

	h.logger.Info("password changed", "user", user.ID.String())
	return nil
}
