package guard

import "time"

// DefaultConfig implements Config with the default policy values. The zero
// value is usable; every getter falls back to a finite default so a missing
// setting can never produce an unbounded TTL.
type DefaultConfig struct {
	TokenTTLs              map[TokenKind]time.Duration
	SessionTTL             time.Duration
	SlidingSessions        bool
	SessionCookieName      string
	SessionHeaderName      string
	SessionContextKey      string
	KeyPrefix              string
	ReplaceActiveChallenge bool
}

// NewDefaultConfig returns a config with the default TTL policy:
// EMAIL_VERIFY 24h, PASSWORD_RESET 1h, PASSWORD_CHANGE and
// DEACTIVATE_ACCOUNT 15m, sessions 7 days sliding.
func NewDefaultConfig() *DefaultConfig {
	return &DefaultConfig{
		SessionTTL:             7 * 24 * time.Hour,
		SlidingSessions:        true,
		SessionCookieName:      "session",
		SessionHeaderName:      "X-Session-Token",
		SessionContextKey:      "session",
		KeyPrefix:              "guard",
		ReplaceActiveChallenge: true,
	}
}

func (c *DefaultConfig) GetTokenTTL(kind TokenKind) time.Duration {
	if ttl, ok := c.TokenTTLs[kind]; ok && ttl > 0 {
		return ttl
	}
	return defaultTokenTTL(kind)
}

func (c *DefaultConfig) GetSessionTTL() time.Duration {
	if c.SessionTTL > 0 {
		return c.SessionTTL
	}
	return 7 * 24 * time.Hour
}

func (c *DefaultConfig) GetSlidingSessions() bool {
	return c.SlidingSessions
}

func (c *DefaultConfig) GetSessionCookieName() string {
	if c.SessionCookieName == "" {
		return "session"
	}
	return c.SessionCookieName
}

func (c *DefaultConfig) GetSessionHeaderName() string {
	if c.SessionHeaderName == "" {
		return "X-Session-Token"
	}
	return c.SessionHeaderName
}

func (c *DefaultConfig) GetSessionContextKey() string {
	if c.SessionContextKey == "" {
		return "session"
	}
	return c.SessionContextKey
}

func (c *DefaultConfig) GetKeyPrefix() string {
	if c.KeyPrefix == "" {
		return "guard"
	}
	return c.KeyPrefix
}

func (c *DefaultConfig) GetReplaceActiveChallenge() bool {
	return c.ReplaceActiveChallenge
}
