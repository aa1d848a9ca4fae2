package guard

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordRecoveryMessage struct {
	Email     string `json:"email" example:"pepe.rone@example.com" doc:"Account email to recover."`
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

func (m InitializePasswordRecoveryMessage) Type() string { return "guard.password_recovery.init" }

func (m InitializePasswordRecoveryMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
	)
}

type InitializePasswordRecoveryHandler struct {
	users  UserStore
	tokens *TokenManager
	meta   *MetadataResolver
	logger Logger
}

// NewInitializePasswordRecoveryHandler creates a handler with sane defaults
func NewInitializePasswordRecoveryHandler(users UserStore, tokens *TokenManager) *InitializePasswordRecoveryHandler {
	return &InitializePasswordRecoveryHandler{
		users:  users,
		tokens: tokens,
		meta:   NewMetadataResolver(nil),
		logger: defLogger{},
	}
}

// WithMetadataResolver overrides the metadata resolver
func (h *InitializePasswordRecoveryHandler) WithMetadataResolver(meta *MetadataResolver) *InitializePasswordRecoveryHandler {
	if meta != nil {
		h.meta = meta
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *InitializePasswordRecoveryHandler) WithLogger(logger Logger) *InitializePasswordRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordRecoveryHandler) Execute(ctx context.Context, event InitializePasswordRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordRecoveryHandler) execute(ctx context.Context, event InitializePasswordRecoveryMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password recovery request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.Is(err, ErrIdentityNotFound) {
			// an unknown address gets the same acknowledgement as a known
			// one, recovery must not enumerate accounts
			h.logger.Info("password recovery requested for unknown address")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password recovery")
	}

	meta := h.meta.Resolve(ctx, event.UserAgent, event.IP)

	return h.tokens.SendPasswordReset(ctx, user, meta)
}

type FinalizePasswordRecoveryMessage struct {
	Token     string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Reset token from the recovery mail."`
	Password  string `json:"password" doc:"New password."`
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

func (m FinalizePasswordRecoveryMessage) Type() string { return "guard.password_recovery.finalize" }

func (m FinalizePasswordRecoveryMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required, is.UUIDv4),
		validation.Field(&m.Password, validation.Required, validation.Length(10, 100)),
	)
}

type FinalizePasswordRecoveryHandler struct {
	users    UserStore
	tokens   *TokenManager
	sessions *SessionManager
	mailer   Mailer
	hasher   PasswordAuthenticator
	meta     *MetadataResolver
	logger   Logger
}

// NewFinalizePasswordRecoveryHandler creates a handler with sane defaults
func NewFinalizePasswordRecoveryHandler(users UserStore, tokens *TokenManager, sessions *SessionManager) *FinalizePasswordRecoveryHandler {
	return &FinalizePasswordRecoveryHandler{
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
func (h *FinalizePasswordRecoveryHandler) WithMailer(mailer Mailer) *FinalizePasswordRecoveryHandler {
	if mailer != nil {
		h.mailer = mailer
	}
	return h
}

// WithPasswordAuthenticator overrides the password hasher
func (h *FinalizePasswordRecoveryHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *FinalizePasswordRecoveryHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithMetadataResolver overrides the metadata resolver
func (h *FinalizePasswordRecoveryHandler) WithMetadataResolver(meta *MetadataResolver) *FinalizePasswordRecoveryHandler {
	if meta != nil {
		h.meta = meta
	}
	return h
}

// WithLogger overrides the logger used by the handler
func (h *FinalizePasswordRecoveryHandler) WithLogger(logger Logger) *FinalizePasswordRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordRecoveryHandler) Execute(ctx context.Context, event FinalizePasswordRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordRecoveryHandler) execute(ctx context.Context, event FinalizePasswordRecoveryMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password recovery confirmation")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := h.tokens.Confirm(ctx, event.Token, TokenPasswordReset)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(ctx, userID)
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

	// recovery runs unauthenticated, there is no current session to keep
	if err := h.sessions.RevokeAllExcept(ctx, user.ID, ""); err != nil {
		return err
	}

	meta := h.meta.Resolve(ctx, event.UserAgent, event.IP)
	if err := h.mailer.SendPasswordChangedNotice(ctx, user.Email, meta); err != nil {
		h.logger.Error("failed to deliver password change notice", "error", err)
	}

	h.logger.Info("password recovered", "user", user.ID.String())
	return nil
}
