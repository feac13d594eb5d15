package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rstore", cmd.Use)
	assert.Contains(t, cmd.Long, "journal")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "validate", "trace", "replay"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("no-color"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"run", []string{"filter", "golden", "update", "journal", "metrics", "trace"}},
		{"trace", []string{"db", "session", "model", "kind"}},
		{"replay", []string{"db", "session", "model"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(f), "--%s", f)
			}
		})
	}
}

func TestRootInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "ok.yaml", "name: ok\ndescription: empty model\nsteps:\n  - wrap: {id: m, model: {}}\n")

	_, _, err := execute(NewRootCommand(), "--format", "xml", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "scenarios/ok.yaml", "name: ok\ndescription: empty model\nsteps:\n  - wrap: {id: m, model: {}}\n")
	cfgPath := filepath.Join(dir, "rstore.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[metrics]\nnamespace = \"cfgtest\"\n"), 0644))

	_, stderr, err := execute(NewRootCommand(),
		"--config", cfgPath, "run", filepath.Join(dir, "scenarios"), "--metrics")
	require.NoError(t, err)
	assert.Contains(t, stderr, "cfgtest_models")
}

func TestRootBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rstore.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[log\nlevel ="), 0644))

	_, _, err := execute(NewRootCommand(), "--config", cfgPath, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
