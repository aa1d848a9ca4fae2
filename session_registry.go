package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRegistry keeps live sessions in a key value store with native
// per key expiry. A per user set of session ids acts as the secondary index
// for listing and bulk revocation; the primary key lookup stays
// authoritative for authorization, so a momentarily stale index entry is a
// display gap, not a security hole.
type RedisSessionRegistry struct {
	client redis.UniversalClient
	prefix string
	logger Logger
}

var _ SessionRegistry = (*RedisSessionRegistry)(nil)

// NewRedisSessionRegistry wires a registry on top of an existing client
func NewRedisSessionRegistry(client redis.UniversalClient, cfg Config) *RedisSessionRegistry {
	prefix := "guard"
	if cfg != nil {
		prefix = cfg.GetKeyPrefix()
	}
	return &RedisSessionRegistry{
		client: client,
		prefix: prefix,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the registry
func (r *RedisSessionRegistry) WithLogger(logger Logger) *RedisSessionRegistry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *RedisSessionRegistry) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sessionID)
}

func (r *RedisSessionRegistry) userKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:user:%s:sessions", r.prefix, userID.String())
}

// Put upserts the session and resets its TTL. The user index membership is
// written alongside in the same pipeline.
func (r *RedisSessionRegistry) Put(ctx context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return goerrors.New("session must have an id", goerrors.CategoryBadInput)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, r.userKey(session.UserID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("session registry put failed", "error", err)
		return ErrStoreUnavailable
	}

	return nil
}

func (r *RedisSessionRegistry) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		r.logger.Error("session registry get failed", "error", err)
		return nil, ErrStoreUnavailable
	}

	session := &Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode session")
	}

	return session, nil
}

// ListByUser resolves the index set against the primary entries. Ids whose
// primary key already expired are pruned from the index as they are found.
func (r *RedisSessionRegistry) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		r.logger.Error("session registry list failed", "error", err)
		return nil, ErrStoreUnavailable
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if err != nil {
			if goerrors.Is(err, ErrSessionNotFound) {
				if err := r.client.SRem(ctx, r.userKey(userID), id).Err(); err != nil {
					r.logger.Error("session index prune failed", "error", err)
				}
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// Delete removes the primary entry and the index membership. Deleting an
// absent session is a no-op.
func (r *RedisSessionRegistry) Delete(ctx context.Context, sessionID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		if goerrors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.SRem(ctx, r.userKey(session.UserID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("session registry delete failed", "error", err)
		return ErrStoreUnavailable
	}

	return nil
}

// DeleteAllForUserExcept revokes every session of the user but the one
// making the request. An empty keep id revokes everything.
func (r *RedisSessionRegistry) DeleteAllForUserExcept(ctx context.Context, userID uuid.UUID, keepSessionID string) error {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		r.logger.Error("session registry bulk revoke failed", "error", err)
		return ErrStoreUnavailable
	}

	revoke := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != keepSessionID {
			revoke = append(revoke, id)
		}
	}
	if len(revoke) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, id := range revoke {
		pipe.Del(ctx, r.sessionKey(id))
		pipe.SRem(ctx, r.userKey(userID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("session registry bulk revoke failed", "error", err)
		return ErrStoreUnavailable
	}

	return nil
}

// Refresh extends the TTL of a live session, used by sliding expiry
func (r *RedisSessionRegistry) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, r.sessionKey(sessionID), ttl).Result()
	if err != nil {
		r.logger.Error("session registry refresh failed", "error", err)
		return ErrStoreUnavailable
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}
