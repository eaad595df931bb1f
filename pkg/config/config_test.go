package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9000, "fetch_retry_delay": "500ms", "calendar": "Deadlines"}`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, Duration(500*time.Millisecond), cfg.FetchRetryDelay)
	assert.Equal(t, "Deadlines", cfg.Calendar)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, Duration(30*time.Second), cfg.FetchTimeout)
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fetch_timeout": "soon"}`), 0600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"WEWORK_ACCESS_TOKEN": "tok",
		"SERVER_MODE":         "STDIO",
		"PORT":                "8081",
		"MATCH_THRESHOLD":     "0.5",
		"FETCH_RETRIES":       "5",
		"FETCH_RETRY_DELAY":   "1s",
		"FETCH_TIMEOUT":       "10s",
		"HOST":                "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, ModeStdio, cfg.ServerMode)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.Equal(t, 5, cfg.FetchRetries)
	assert.Equal(t, Duration(time.Second), cfg.FetchRetryDelay)
	assert.Equal(t, Duration(10*time.Second), cfg.FetchTimeout)
	assert.Equal(t, "0.0.0.0", cfg.Host)
}

func TestApplyEnvErrors(t *testing.T) {
	err := Default().ApplyEnv(env(map[string]string{"PORT": "eighty"}))
	assert.ErrorContains(t, err, "PORT")

	err = Default().ApplyEnv(env(map[string]string{"SERVER_MODE": "grpc"}))
	assert.ErrorContains(t, err, "server mode")

	err = Default().ApplyEnv(env(map[string]string{"MATCH_THRESHOLD": "2"}))
	assert.ErrorContains(t, err, "match threshold")
}

func TestSaveFileOmitsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.AccessToken = "secret"
	cfg.Calendar = "Deadlines"
	require.NoError(t, SaveFile(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"fetch_retry_delay": "2s"`)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Deadlines", loaded.Calendar)
	assert.Equal(t, "", loaded.AccessToken)
	assert.Equal(t, "secret", cfg.AccessToken)
}
