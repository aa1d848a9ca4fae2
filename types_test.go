package guard_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func TestLoggerKeyValueContract(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	env.tokenMgr.WithLogger(slogLogger{l: slog.New(slog.NewTextHandler(&buf, nil))})

	user := env.registerUser(t, "pepe", "pepe.rone@example.com", "secretpassword")
	require.NoError(t, env.tokenMgr.SendVerification(ctx, user))

	// manager log lines carry structured attrs, not printf leftovers
	out := buf.String()
	assert.Contains(t, out, "verification token issued")
	assert.Contains(t, out, "user="+user.ID.String())
	assert.NotContains(t, out, "%!")

	// the plaintext token never reaches the log stream
	assert.NotContains(t, out, env.mailer.verifications[user.Email])
}
