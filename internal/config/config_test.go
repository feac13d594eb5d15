package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rstore.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
[log]
level = "debug"
format = "json"

[journal]
enabled = true
path = "/tmp/j.db"
label = "ci"

[run]
timeout = "5s"
`)
	cfg, err := load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, JournalConfig{Enabled: true, Path: "/tmp/j.db", Label: "ci"}, cfg.Journal)
	assert.Equal(t, 5*time.Second, cfg.Run.Timeout)
	assert.Equal(t, "restrictedstore", cfg.Metrics.Namespace, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
[log]
level = "debug"
`)
	cfg, err := load(path, []string{
		"RSTORE_LOG_LEVEL=error",
		"RSTORE_JOURNAL_ENABLED=true",
		"RSTORE_JOURNAL_PATH=env.db",
		"RSTORE_RUN_TIMEOUT=1m",
		"LOG_LEVEL=ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "env.db", cfg.Journal.Path)
	assert.Equal(t, time.Minute, cfg.Run.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		environ []string
	}{
		{name: "unknown key", file: "[log]\ncolour = \"red\"\n"},
		{name: "bad level", file: "[log]\nlevel = \"loud\"\n"},
		{name: "bad format", file: "[log]\nformat = \"xml\"\n"},
		{name: "bad toml", file: "[log\n"},
		{name: "journal without path", file: "[journal]\nenabled = true\npath = \"\"\n"},
		{name: "bad env duration", environ: []string{"RSTORE_RUN_TIMEOUT=soon"}},
		{name: "zero timeout", environ: []string{"RSTORE_RUN_TIMEOUT=0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := load(path, tt.environ)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.Logger(&buf, false).Info("hidden")
	assert.Empty(t, buf.String())

	LogConfig{Level: "warn", Format: "json"}.Logger(&buf, true).Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	LogConfig{Level: "info", Format: "text"}.Logger(&buf, false).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
