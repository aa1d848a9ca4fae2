package guard_test

import (
	"context"
	"testing"

	guard "github.com/goliatone/go-guard"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGateAuthorize(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	got, err := gate.Authorize(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.UserID, got.UserID)
}

func TestGateAuthorizeUniformDenial(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)
	ctx := context.Background()

	// no session id presented
	_, err := gate.Authorize(ctx, "")
	assert.ErrorIs(t, err, guard.ErrAuthenticationRequired)

	// never existed
	_, err = gate.Authorize(ctx, uuid.NewString())
	assert.ErrorIs(t, err, guard.ErrAuthenticationRequired)

	// existed, then revoked: same denial as never existed
	session, err := env.sessions.CreateSession(ctx, uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)
	require.NoError(t, env.sessions.Revoke(ctx, session.ID))

	_, err = gate.Authorize(ctx, session.ID)
	assert.ErrorIs(t, err, guard.ErrAuthenticationRequired)
}

func TestGateAuthorizeFailsClosed(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	env.mr.Close()

	// an outage must not read as "not authenticated"
	_, err = gate.Authorize(ctx, session.ID)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, guard.ErrAuthenticationRequired)
}

func TestGateProtected(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)

	session, err := env.sessions.CreateSession(context.Background(), uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	mc := &MockContext{}
	mc.On("Cookies", "session").Return(session.ID)
	mc.On("Context").Return(context.Background())
	mc.On("Locals", "session", mock.AnythingOfType("*guard.Session")).Return(nil)
	mc.On("SetContext", mock.Anything).Return()

	handlerCalled := false
	handler := gate.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mc))
	assert.True(t, handlerCalled)
	mc.AssertExpectations(t)
}

func TestGateProtectedHeaderFallback(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)

	session, err := env.sessions.CreateSession(context.Background(), uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	mc := &MockContext{}
	mc.On("Cookies", "session").Return("")
	mc.On("GetString", "X-Session-Token", "").Return(session.ID)
	mc.On("Context").Return(context.Background())
	mc.On("Locals", "session", mock.AnythingOfType("*guard.Session")).Return(nil)
	mc.On("SetContext", mock.Anything).Return()

	handlerCalled := false
	handler := gate.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mc))
	assert.True(t, handlerCalled)
}

func TestGateProtectedDenies(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)

	mc := &MockContext{}
	mc.On("Cookies", "session").Return("")
	mc.On("GetString", "X-Session-Token", "").Return("")
	mc.On("Context").Return(context.Background())
	mc.On("OriginalURL").Return("/account")
	mc.On("JSON", router.StatusUnauthorized, mock.MatchedBy(func(v any) bool {
		payload, ok := v.(map[string]any)
		return ok && payload["text_code"] == guard.TextCodeAuthRequired
	})).Return(nil)

	handlerCalled := false
	handler := gate.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mc))
	assert.False(t, handlerCalled)
	mc.AssertExpectations(t)
}

func TestGateProtectedStoreOutage(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)

	session, err := env.sessions.CreateSession(context.Background(), uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	env.mr.Close()

	mc := &MockContext{}
	mc.On("Cookies", "session").Return(session.ID)
	mc.On("Context").Return(context.Background())
	mc.On("OriginalURL").Return("/account")
	mc.On("JSON", router.StatusServiceUnavailable, mock.MatchedBy(func(v any) bool {
		payload, ok := v.(map[string]any)
		return ok && payload["text_code"] == guard.TextCodeStoreUnavailable
	})).Return(nil)

	handlerCalled := false
	handler := gate.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mc))
	assert.False(t, handlerCalled)
	mc.AssertExpectations(t)
}

func TestGateProtectedAttachesSession(t *testing.T) {
	env := setupEnv(t)
	gate := guard.NewGate(env.sessions, nil)

	session, err := env.sessions.CreateSession(context.Background(), uuid.New(), chromeOnWindowsUA, "203.0.113.7")
	require.NoError(t, err)

	mc := &MockContext{}
	mc.On("Cookies", "session").Return(session.ID)
	mc.On("Context").Return(context.Background())
	mc.On("Locals", "session", mock.AnythingOfType("*guard.Session")).Return(nil)

	var attached context.Context
	mc.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		attached = args.Get(0).(context.Context)
	}).Return()

	handler := gate.Protected()(func(c router.Context) error { return nil })
	require.NoError(t, handler(mc))

	got, ok := guard.SessionFromContext(attached)
	require.True(t, ok)
	assert.Equal(t, session.ID, got.ID)

	userID, ok := guard.UserIDFromContext(attached)
	require.True(t, ok)
	assert.Equal(t, session.UserID, userID)
}
