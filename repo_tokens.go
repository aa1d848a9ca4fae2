package guard

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeTokenSQL deletes a token by value in a single conditional statement
// and returns the prior row. Two concurrent consumers of the same value get
// exactly one row between them.
var ConsumeTokenSQL = `DELETE FROM "security_tokens"
WHERE
	"token" = ?
AND
	"kind" = ?
RETURNING *;`

// ConsumeOwnedTokenSQL additionally scopes the delete to the owning user.
// Short numeric challenges go through this variant so a guessed value that
// belongs to someone else is a plain miss and never burns their token.
var ConsumeOwnedTokenSQL = `DELETE FROM "security_tokens"
WHERE
	"token" = ?
AND
	"kind" = ?
AND
	"user_id" = ?
RETURNING *;`

// Tokens is the durable single use token store
type Tokens interface {
	repository.Repository[*SecurityToken]

	Issue(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (*SecurityToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, ttl time.Duration) (*SecurityToken, error)
	Consume(ctx context.Context, tokenValue string, kind TokenKind) (uuid.UUID, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenValue string, kind TokenKind) (uuid.UUID, error)
	ConsumeFor(ctx context.Context, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error)
	ConsumeForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error)
	Active(ctx context.Context, userID uuid.UUID, kind TokenKind) (*SecurityToken, error)
}

type tokens struct {
	repository.Repository[*SecurityToken]
	db  *bun.DB
	now func() time.Time
}

var _ Tokens = (*tokens)(nil)

type TokensOption func(*tokens)

// WithTokensClock overrides the clock, used by expiry tests
func WithTokensClock(now func() time.Time) TokensOption {
	return func(t *tokens) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokensRepository(db *bun.DB, opts ...TokensOption) Tokens {
	repo := repository.NewRepository[*SecurityToken](db, repository.ModelHandlers[*SecurityToken]{
		NewRecord: func() *SecurityToken { return &SecurityToken{} },
		GetID: func(t *SecurityToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *SecurityToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	repoTokens := &tokens{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repoTokens)
		}
	}

	return repoTokens
}

func (a *tokens) Issue(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (*SecurityToken, error) {
	return a.IssueTx(ctx, a.db, userID, kind, ttl)
}

// IssueTx writes the new token as an upsert on the deterministic (user, kind)
// row id: a prior live token of the same kind is overwritten in the same
// statement, so concurrent issuers cannot leave two live tokens behind.
func (a *tokens) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, ttl time.Duration) (*SecurityToken, error) {
	if userID == uuid.Nil {
		return nil, goerrors.New("token issuance requires a user id", goerrors.CategoryBadInput)
	}

	if ttl <= 0 {
		ttl = defaultTokenTTL(kind)
	}

	rowID, err := tokenRowID(userID, kind)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive token row id")
	}

	value, err := newTokenValue(kind)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token value")
	}

	now := a.now()
	token := &SecurityToken{
		ID:        rowID,
		Token:     value,
		Kind:      kind,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: &now,
	}

	_, err = tx.NewInsert().
		Model(token).
		On("CONFLICT (id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("user_id = EXCLUDED.user_id").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist security token")
	}

	return token, nil
}

func (a *tokens) Consume(ctx context.Context, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	return a.ConsumeTx(ctx, a.db, tokenValue, kind)
}

// ConsumeTx deletes the token and returns its owner. The delete carries the
// expiry check with it: an expired row is removed (lazy cleanup) but still
// reported as expired, and a second consume of the same value always comes
// back not found.
func (a *tokens) ConsumeTx(ctx context.Context, tx bun.IDB, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return uuid.Nil, ErrNoEmptyToken
	}

	rows, err := a.Repository.RawTx(ctx, tx, ConsumeTokenSQL, tokenValue, string(kind))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume security token")
	}

	if len(rows) == 0 {
		return uuid.Nil, ErrTokenNotFound
	}

	token := rows[0]
	if token.Expired(a.now()) {
		return uuid.Nil, ErrTokenExpired
	}

	return token.UserID, nil
}

func (a *tokens) ConsumeFor(ctx context.Context, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	return a.ConsumeForTx(ctx, a.db, userID, tokenValue, kind)
}

// ConsumeForTx is the owner scoped variant of ConsumeTx: a value that exists
// but belongs to a different user reads as not found and stays live for its
// owner.
func (a *tokens) ConsumeForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenValue string, kind TokenKind) (uuid.UUID, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return uuid.Nil, ErrNoEmptyToken
	}

	if userID == uuid.Nil {
		return uuid.Nil, goerrors.New("token consumption requires a user id", goerrors.CategoryBadInput)
	}

	rows, err := a.Repository.RawTx(ctx, tx, ConsumeOwnedTokenSQL, tokenValue, string(kind), userID.String())
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume security token")
	}

	if len(rows) == 0 {
		return uuid.Nil, ErrTokenNotFound
	}

	token := rows[0]
	if token.Expired(a.now()) {
		return uuid.Nil, ErrTokenExpired
	}

	return token.UserID, nil
}

// Active returns the live token of the given kind for the user, or
// ErrTokenNotFound. Expired leftovers are removed on detection.
func (a *tokens) Active(ctx context.Context, userID uuid.UUID, kind TokenKind) (*SecurityToken, error) {
	rowID, err := tokenRowID(userID, kind)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive token row id")
	}

	token := &SecurityToken{}
	err = a.db.NewSelect().
		Model(token).
		Where("?TableAlias.id = ?", rowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up active token")
	}

	if token.Expired(a.now()) {
		if _, err := a.db.NewDelete().
			Model((*SecurityToken)(nil)).
			Where("id = ?", rowID).
			Exec(ctx); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clean up expired token")
		}
		return nil, ErrTokenNotFound
	}

	return token, nil
}
