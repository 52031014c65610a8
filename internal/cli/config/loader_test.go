package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("state", "", "")
	flags.String("output", "", "")
	flags.Bool("verbose", false, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.False(t, cfg.Strict)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traceline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state_path: /var/lib/traceline.db
output: json
server:
  port: 9000
  watch: true
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/traceline.db", cfg.StatePath)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.Watch)
	assert.Equal(t, path, FileUsed())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traceline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: table\n"), 0o644))

	t.Setenv("TRACELINE_OUTPUT", "markdown")
	t.Setenv("TRACELINE_SERVER__PORT", "7777")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.OutputFormat)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv("TRACELINE_OUTPUT", "markdown")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--output", "json", "--state", "here.db"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	// --state maps onto the state_path key.
	assert.Equal(t, "here.db", cfg.StatePath)
}

func TestUnchangedFlagsDoNotOverride(t *testing.T) {
	t.Setenv("TRACELINE_OUTPUT", "markdown")

	cfg, err := Load("", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.OutputFormat)
}
