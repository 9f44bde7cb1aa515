package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s, err := Decode(New())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/graphql", s.GraphQLURL)
	assert.Equal(t, "ws://localhost:8002", s.WSBaseURL)
	assert.Equal(t, Notify{
		GracePeriod:      5 * time.Second,
		ErrorAttempts:    2,
		ReconnectInitial: 3 * time.Second,
		ReconnectMax:     time.Minute,
	}, s.Notify)
	assert.Equal(t, Duel{DefaultTotalQuestions: 5, ResumeAttempts: 3, WriteTimeout: 3 * time.Second}, s.Duel)
	assert.Equal(t, ":8002", s.Sim.Addr)
	assert.Equal(t, 20*time.Second, s.Sim.TimeLimit)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COURSECLASH_USER_ID", "4")
	t.Setenv("COURSECLASH_NOTIFY_GRACE_PERIOD", "250ms")
	t.Setenv("COURSECLASH_DUEL_RESUME_ATTEMPTS", "0")
	t.Setenv("COURSECLASH_DEBUG", "true")

	s, err := Decode(New())
	require.NoError(t, err)
	assert.Equal(t, "4", s.UserID)
	assert.Equal(t, 250*time.Millisecond, s.Notify.GracePeriod)
	assert.Equal(t, 0, s.Duel.ResumeAttempts)
	assert.True(t, s.Debug)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COURSECLASH_AUTH_TOKEN=secret\nCOURSECLASH_WS_BASE_URL=wss://duels.example\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("COURSECLASH_AUTH_TOKEN")
		os.Unsetenv("COURSECLASH_WS_BASE_URL")
	})

	v, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	s, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "secret", s.AuthToken)
	assert.Equal(t, "wss://duels.example", s.WSBaseURL)
}

func TestDecode_RejectsBadReconnect(t *testing.T) {
	v := New()
	v.Set("notify.reconnect_max", time.Second)
	_, err := Decode(v)
	require.Error(t, err)
}
