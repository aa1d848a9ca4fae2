package guard

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type RequestVerificationMessage struct {
	UserID uuid.UUID `json:"user_id" doc:"User whose email address needs verifying."`
}

func (m RequestVerificationMessage) Type() string { return "guard.verification.request" }

type RequestVerificationHandler struct {
	users  UserStore
	tokens *TokenManager
	logger Logger
}

// NewRequestVerificationHandler creates a handler with sane defaults
func NewRequestVerificationHandler(users UserStore, tokens *TokenManager) *RequestVerificationHandler {
	return &RequestVerificationHandler{
		users:  users,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler
func (h *RequestVerificationHandler) WithLogger(logger Logger) *RequestVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestVerificationHandler) Execute(ctx context.Context, event RequestVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestVerificationHandler) execute(ctx context.Context, event RequestVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if user.EmailValidated {
		return nil
	}

	return h.tokens.SendVerification(ctx, user)
}

type ConfirmVerificationMessage struct {
	Token      string `json:"token" doc:"Verification token from the welcome mail."`
	UserAgent  string `json:"user_agent"`
	IP         string `json:"ip"`
	OnResponse func(session *Session)
}

func (m ConfirmVerificationMessage) Type() string { return "guard.verification.confirm" }

func (m ConfirmVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required, is.UUIDv4),
	)
}

type ConfirmVerificationHandler struct {
	users    UserStore
	tokens   *TokenManager
	sessions *SessionManager
	logger   Logger
}

// NewConfirmVerificationHandler creates a handler with sane defaults
func NewConfirmVerificationHandler(users UserStore, tokens *TokenManager, sessions *SessionManager) *ConfirmVerificationHandler {
	return &ConfirmVerificationHandler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler
func (h *ConfirmVerificationHandler) WithLogger(logger Logger) *ConfirmVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmVerificationHandler) Execute(ctx context.Context, event ConfirmVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute marks the address verified and opens a fresh session so the user
// lands signed in after following the mail link
func (h *ConfirmVerificationHandler) execute(ctx context.Context, event ConfirmVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification confirmation")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := h.tokens.Confirm(ctx, event.Token, TokenEmailVerify)
	if err != nil {
		return err
	}

	if err := h.users.MarkEmailVerified(ctx, userID); err != nil {
		return err
	}

	session, err := h.sessions.CreateSession(ctx, userID, event.UserAgent, event.IP)
	if err != nil {
		return err
	}

	h.logger.Info("email verified", "user", userID.String())

	if event.OnResponse != nil {
		event.OnResponse(session)
	}

	return nil
}
