package guard

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenKind is the purpose tag of a single use security token
type TokenKind string

const (
	// TokenEmailVerify gates the email verification flow
	TokenEmailVerify TokenKind = "EMAIL_VERIFY"
	// TokenPasswordReset gates the password recovery flow
	TokenPasswordReset TokenKind = "PASSWORD_RESET"
	// TokenPasswordChange gates the step up password change flow
	TokenPasswordChange TokenKind = "PASSWORD_CHANGE"
	// TokenDeactivateAccount gates the account deactivation flow
	TokenDeactivateAccount TokenKind = "DEACTIVATE_ACCOUNT"
)

func defaultTokenTTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenEmailVerify:
		return 24 * time.Hour
	case TokenPasswordReset:
		return time.Hour
	case TokenPasswordChange, TokenDeactivateAccount:
		return 15 * time.Minute
	}
	return 15 * time.Minute
}

// SecurityToken is a single use, typed, time boxed credential. The row id is
// deterministic over (user, kind) so issuance is an upsert on the primary
// key: the previous live token of the same kind is overwritten in a single
// statement and becomes unconsumeable.
type SecurityToken struct {
	bun.BaseModel `bun:"table:security_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	Kind          TokenKind  `bun:"kind,notnull" json:"kind,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant
func (t *SecurityToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// tokenRowID derives the composite (user, kind) key as a stable UUID
func tokenRowID(userID uuid.UUID, kind TokenKind) (uuid.UUID, error) {
	return hashid.NewUUID(userID.String() + ":" + string(kind))
}

// newTokenValue generates the opaque credential. Step up challenges get a
// short numeric PIN the user retypes from their inbox; link tokens get a
// full UUID.
func newTokenValue(kind TokenKind) (string, error) {
	switch kind {
	case TokenPasswordChange, TokenDeactivateAccount:
		return newPIN(6)
	}
	return uuid.NewString(), nil
}

func newPIN(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	pin := n.String()
	for len(pin) < digits {
		pin = "0" + pin
	}
	return pin, nil
}

// User is the reference user record consumed by the step up flows. The
// embedding application owns the real schema; this mirrors the columns the
// flows touch.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	DeactivatedAt  *time.Time `bun:"deactivated_at,nullzero" json:"deactivated_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Deactivated reports whether the account has been shut down
func (u *User) Deactivated() bool {
	return u.DeactivatedAt != nil
}
