package guard

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type DeactivateChallengeMessage struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email" doc:"Account email, re-typed as a deliberate friction step."`
	Password  string    `json:"password"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
}

func (m DeactivateChallengeMessage) Type() string { return "guard.deactivate.challenge" }

func (m DeactivateChallengeMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(1, 200)),
	)
}

type DeactivateChallengeHandler struct {
	users  UserStore
	tokens *TokenManager
	hasher PasswordAuthenticator
	meta   *MetadataResolver
	logger Logger
}

// NewDeactivateChallengeHandler creates a handler with sane defaults
func NewDeactivateChallengeHandler(users UserStore, tokens *TokenManager) *DeactivateChallengeHandler {
	return &DeactivateChallengeHandler{
		users:  users,
		tokens: tokens,
		hasher: BcryptAuthenticator{},
		meta:   NewMetadataResolver(nil),
		logger: defLogger{},
	}
}

// WithPasswordAuthenticator overrides the password hasher
func (h *DeactivateChallengeHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *DeactivateChallengeHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithMetadataResolver overrides the metadata resolver
func (h *DeactivateChallengeHandler) WithMetadataResolver(meta *MetadataResolver) *DeactivateChallengeHandler {
	if meta != nil {
		h.meta = meta
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *DeactivateChallengeHandler) WithLogger(logger Logger) *DeactivateChallengeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeactivateChallengeHandler) Execute(ctx context.Context, event DeactivateChallengeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during deactivation challenge",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeactivateChallengeHandler) execute(ctx context.Context, event DeactivateChallengeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid deactivation request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if !strings.EqualFold(strings.TrimSpace(event.Email), user.Email) {
		return ErrMismatchedHashAndPassword
	}

	if err := h.hasher.ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		return ErrMismatchedHashAndPassword
	}

	meta := h.meta.Resolve(ctx, event.UserAgent, event.IP)

	return h.tokens.SendDeactivationChallenge(ctx, user, meta)
}

type DeactivateConfirmMessage struct {
	UserID uuid.UUID `json:"user_id"`
	PIN    string    `json:"pin" example:"710244" doc:"Numeric challenge from the deactivation mail."`
}

func (m DeactivateConfirmMessage) Type() string { return "guard.deactivate.confirm" }

func (m DeactivateConfirmMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.PIN, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

type DeactivateConfirmHandler struct {
	users    UserStore
	tokens   *TokenManager
	sessions *SessionManager
	logger   Logger
}

// NewDeactivateConfirmHandler creates a handler with sane defaults
func NewDeactivateConfirmHandler(users UserStore, tokens *TokenManager, sessions *SessionManager) *DeactivateConfirmHandler {
	return &DeactivateConfirmHandler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler
func (h *DeactivateConfirmHandler) WithLogger(logger Logger) *DeactivateConfirmHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeactivateConfirmHandler) Execute(ctx context.Context, event DeactivateConfirmMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during deactivation confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute flips the account to deactivated and revokes every session, the
// current device included: a deactivated account has no live bindings left
func (h *DeactivateConfirmHandler) execute(ctx context.Context, event DeactivateConfirmMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid deactivation confirmation")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// scoped to the requesting user so a guessed PIN belonging to another
	// account is a plain miss, not a burned challenge
	tokenOwner, err := h.tokens.ConfirmFor(ctx, event.UserID, event.PIN, TokenDeactivateAccount)
	if err != nil {
		return err
	}

	if err := h.users.Deactivate(ctx, tokenOwner); err != nil {
		return err
	}

	if err := h.sessions.RevokeAllExcept(ctx, tokenOwner, ""); err != nil {
		return err
	}

	h.logger.Info("account deactivated", "user", tokenOwner.String())
	return nil
}
