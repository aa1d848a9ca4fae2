package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	guard "github.com/goliatone/go-guard"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) (*guard.RedisSessionRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return guard.NewRedisSessionRegistry(client, nil), mr
}

func newTestSession(userID uuid.UUID, browser string) *guard.Session {
	return guard.NewSession(userID, guard.SessionMetadata{
		Device: guard.DeviceInfo{Browser: browser, OS: "Linux", Type: "Desktop"},
		IP:     "203.0.113.7",
	})
}

func TestRegistryPutAndGet(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	session := newTestSession(uuid.New(), "Firefox")
	require.NoError(t, reg.Put(ctx, session, time.Hour))

	got, err := reg.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, "Firefox", got.Metadata.Device.Browser)
	assert.Equal(t, "203.0.113.7", got.Metadata.IP)
}

func TestRegistryGetMissing(t *testing.T) {
	reg, _ := setupRegistry(t)

	_, err := reg.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, guard.ErrSessionNotFound)
}

func TestRegistryTTLExpiry(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	session := newTestSession(uuid.New(), "Firefox")
	require.NoError(t, reg.Put(ctx, session, time.Minute))

	mr.FastForward(2 * time.Minute)

	// expiry and never-existed are indistinguishable on read
	_, err := reg.Get(ctx, session.ID)
	assert.ErrorIs(t, err, guard.ErrSessionNotFound)
}

func TestRegistryListByUser(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()
	userID := uuid.New()

	laptop := newTestSession(userID, "Firefox")
	phone := newTestSession(userID, "Chrome")
	other := newTestSession(uuid.New(), "Safari")

	require.NoError(t, reg.Put(ctx, laptop, time.Hour))
	require.NoError(t, reg.Put(ctx, phone, time.Minute))
	require.NoError(t, reg.Put(ctx, other, time.Hour))

	sessions, err := reg.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	// the phone session expires; listing prunes its stale index entry
	mr.FastForward(2 * time.Minute)

	sessions, err = reg.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, laptop.ID, sessions[0].ID)
}

func TestRegistryListByUserEmpty(t *testing.T) {
	reg, _ := setupRegistry(t)

	sessions, err := reg.ListByUser(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRegistryDelete(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()
	userID := uuid.New()

	session := newTestSession(userID, "Firefox")
	require.NoError(t, reg.Put(ctx, session, time.Hour))

	require.NoError(t, reg.Delete(ctx, session.ID))

	_, err := reg.Get(ctx, session.ID)
	assert.ErrorIs(t, err, guard.ErrSessionNotFound)

	sessions, err := reg.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// deleting an absent session is a no-op
	assert.NoError(t, reg.Delete(ctx, session.ID))
}

func TestRegistryDeleteAllForUserExcept(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()
	userID := uuid.New()

	current := newTestSession(userID, "Firefox")
	phone := newTestSession(userID, "Chrome")
	tablet := newTestSession(userID, "Safari")
	stranger := newTestSession(uuid.New(), "Edge")

	for _, s := range []*guard.Session{current, phone, tablet, stranger} {
		require.NoError(t, reg.Put(ctx, s, time.Hour))
	}

	require.NoError(t, reg.DeleteAllForUserExcept(ctx, userID, current.ID))

	sessions, err := reg.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, current.ID, sessions[0].ID)

	// another user's sessions are untouched
	_, err = reg.Get(ctx, stranger.ID)
	assert.NoError(t, err)
}

func TestRegistryDeleteAllForUser(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Put(ctx, newTestSession(userID, "Firefox"), time.Hour))
	}

	// empty keep id revokes everything, the deactivation path
	require.NoError(t, reg.DeleteAllForUserExcept(ctx, userID, ""))

	sessions, err := reg.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// nothing left to revoke is not an error
	assert.NoError(t, reg.DeleteAllForUserExcept(ctx, userID, ""))
}

func TestRegistryRefresh(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	session := newTestSession(uuid.New(), "Firefox")
	require.NoError(t, reg.Put(ctx, session, time.Minute))

	mr.FastForward(45 * time.Second)
	require.NoError(t, reg.Refresh(ctx, session.ID, time.Minute))

	// past the original deadline but inside the refreshed one
	mr.FastForward(45 * time.Second)
	_, err := reg.Get(ctx, session.ID)
	assert.NoError(t, err)

	err = reg.Refresh(ctx, "nope", time.Minute)
	assert.ErrorIs(t, err, guard.ErrSessionNotFound)
}

func TestRegistryStoreUnavailable(t *testing.T) {
	reg, mr := setupRegistry(t)
	ctx := context.Background()

	session := newTestSession(uuid.New(), "Firefox")
	require.NoError(t, reg.Put(ctx, session, time.Hour))

	mr.Close()

	_, err := reg.Get(ctx, session.ID)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)

	err = reg.Put(ctx, session, time.Hour)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)

	_, err = reg.ListByUser(ctx, session.UserID)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)

	err = reg.Refresh(ctx, session.ID, time.Hour)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
}
