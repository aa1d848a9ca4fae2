package guard

import (
	"github.com/goliatone/go-errors"
)

// Text codes surfaced to API layers alongside structured errors
const (
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeDuplicateChallenge = "DUPLICATE_CHALLENGE"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	TextCodeAuthRequired       = "AUTHENTICATION_REQUIRED"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeEmptyValue         = "EMPTY_VALUE"
)

// ErrTokenNotFound covers both "never issued" and "already consumed";
// callers must not be able to tell the two apart.
var ErrTokenNotFound = errors.New("token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound)

// ErrTokenExpired is returned when a token is presented past its expiry
var ErrTokenExpired = errors.New("token has expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrDuplicateChallenge is returned under the strict issuance policy when a
// live token of the same kind already exists for the user
var ErrDuplicateChallenge = errors.New("an active challenge already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateChallenge)

// ErrSessionNotFound covers absent, revoked, and TTL-expired sessions alike
var ErrSessionNotFound = errors.New("session not found", errors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound)

// ErrStoreUnavailable signals a transient backing store failure. It must
// never be collapsed into a not-found or auth error: the gate fails closed
// with a distinct response so outages do not masquerade as denials.
var ErrStoreUnavailable = errors.New("session store unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable)

// ErrAuthenticationRequired is the uniform denial the gate returns for any
// request without a live session, expired and never-existed alike
var ErrAuthenticationRequired = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeAuthRequired).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the error for invalid credentials
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyString password input should not be empty
var ErrNoEmptyString = errors.New("password should not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyValue)

// ErrNoEmptyToken token input is rejected before any store call
var ErrNoEmptyToken = errors.New("token value should not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyValue)

// ErrIdentityNotFound is the error we return for non found user records
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound)

// IsStoreUnavailable will check for registry outage errors
func IsStoreUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable)
}

// IsTokenExpiredError will check for expired token errors
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenExpired)
}
