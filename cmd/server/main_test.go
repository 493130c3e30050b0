package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopfloor/shopfloor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "version"},
		{"jobs", "recompute"},
	} {
		cmd, rest, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	f := root.PersistentFlags().Lookup("migrations")
	require.NotNil(t, f)
	assert.Equal(t, "migrations", f.DefValue)
}

func TestJobsRecompute_RejectsBadIDBeforeConnecting(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"jobs", "recompute", "AI-123456"})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `job id "AI-123456"`)
}

func TestJobsRecompute_RequiresArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"jobs", "recompute"})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	assert.Error(t, root.Execute())
}

func TestServe_FailsFastOnMissingConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := newRootCmd()
	root.SetArgs([]string{"serve"})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: slog.LevelInfo}, &buf)

	logger.Debug("hidden")
	logger.Info("job created", "human_id", "AI-123456")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job created", rec["msg"])
	assert.Equal(t, "AI-123456", rec["human_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLogger_AlsoWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopfloor.log")
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: slog.LevelDebug, File: path}, &buf)

	logger.Debug("task updated", "version", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"task updated"`)
	assert.Equal(t, buf.String(), string(data))
}

func TestLoadConfig_ReadsEnvFile(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "ATTACHMENT_BASE_URL", "LOG_LEVEL", "JOB_ID_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("JOB_ID_MAX_ATTEMPTS", "3")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(`DATABASE_URL=postgres://shopfloor@localhost/shopfloor
REDIS_URL=redis://localhost:6379
ATTACHMENT_BASE_URL=http://files.local
LOG_LEVEL=debug
JOB_ID_MAX_ATTEMPTS=7
`), 0o600))

	prevFile, prevLogger := envFile, slog.Default()
	t.Cleanup(func() {
		envFile = prevFile
		slog.SetDefault(prevLogger)
	})
	envFile = path

	cfg, err := loadConfig(new(bytes.Buffer))
	require.NoError(t, err)
	assert.Equal(t, "postgres://shopfloor@localhost/shopfloor", cfg.Database.URL)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, 3, cfg.Production.JobIDMaxAttempts, "process environment wins over the file")
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	prev := envFile
	t.Cleanup(func() { envFile = prev })
	envFile = filepath.Join(t.TempDir(), "absent.env")

	_, err := loadConfig(new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}
