package guard

import (
	"time"

	"github.com/google/uuid"
)

// Session is one live authenticated device/browser context for a user. The
// identifier is opaque to callers; the transport layer binds it to the
// requester (cookie, header) outside of this package.
type Session struct {
	ID        string          `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  SessionMetadata `json:"metadata"`
}

// NewSession builds a session with a fresh opaque identifier
func NewSession(userID uuid.UUID, meta SessionMetadata) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Metadata:  meta,
	}
}

// Current reports whether this session is the one making the request
func (s *Session) Current(sessionID string) bool {
	return s != nil && sessionID != "" && s.ID == sessionID
}
