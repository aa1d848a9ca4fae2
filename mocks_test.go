package guard_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	guard "github.com/goliatone/go-guard"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// captureMailer records every handoff so tests can read back the plaintext
// the way a user would from their inbox.
type captureMailer struct {
	verifications map[string]string
	resets        map[string]string
	changePINs    map[string]string
	deactPINs     map[string]string
	notices       []string
	failWith      error
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		verifications: map[string]string{},
		resets:        map[string]string{},
		changePINs:    map[string]string{},
		deactPINs:     map[string]string{},
	}
}

func (m *captureMailer) SendVerificationToken(_ context.Context, email, token string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.verifications[email] = token
	return nil
}

func (m *captureMailer) SendPasswordResetToken(_ context.Context, email, token string, _ guard.SessionMetadata) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.resets[email] = token
	return nil
}

func (m *captureMailer) SendPasswordChangeToken(_ context.Context, email, token string, _ guard.SessionMetadata) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.changePINs[email] = token
	return nil
}

func (m *captureMailer) SendDeactivationToken(_ context.Context, email, token string, _ guard.SessionMetadata) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.deactPINs[email] = token
	return nil
}

func (m *captureMailer) SendPasswordChangedNotice(_ context.Context, email string, _ guard.SessionMetadata) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.notices = append(m.notices, email)
	return nil
}

// testEnv wires the real stores, sqlite for tokens and users, miniredis for
// sessions, so the flow tests cover the same paths production takes.
type testEnv struct {
	db       *bun.DB
	users    guard.Users
	tokens   guard.Tokens
	tokenMgr *guard.TokenManager
	sessions *guard.SessionManager
	mailer   *captureMailer
	mr       *miniredis.Miniredis
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	bunDB, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := guard.NewDefaultConfig()
	mailer := newCaptureMailer()

	tokens := guard.NewTokensRepository(bunDB)
	registry := guard.NewRedisSessionRegistry(client, cfg)

	return &testEnv{
		db:       bunDB,
		users:    guard.NewUsersRepository(bunDB),
		tokens:   tokens,
		tokenMgr: guard.NewTokenManager(tokens, cfg).WithMailer(mailer),
		sessions: guard.NewSessionManager(registry, cfg),
		mailer:   mailer,
		mr:       mr,
	}
}

func (e *testEnv) registerUser(t *testing.T, username, email, password string) *guard.User {
	t.Helper()

	hash, err := guard.HashPassword(password)
	require.NoError(t, err)

	return seedUser(t, e.db, &guard.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
}

type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
