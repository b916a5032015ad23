package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultYAMLMatchesDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, yaml.Unmarshal([]byte(DefaultYAML), &cfg))

	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GCP_PROJECT_ID", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 15, cfg.Puzzle.DefaultSize)
	assert.Empty(t, cfg.Gemini.ProjectID)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	path := writeConfig(t, `
listen: ":9000"
puzzle:
  default_size: 12
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 12, cfg.Puzzle.DefaultSize)
	assert.Equal(t, 40, cfg.Puzzle.MaxSize, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "listen: \":9000\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("GCP_PROJECT_ID", "my-project")
	t.Setenv("GCP_REGION", "us-central1")
	t.Setenv("BASE_URL", "https://puzzles.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "my-project", cfg.Gemini.ProjectID)
	assert.Equal(t, "us-central1", cfg.Gemini.Region)
	assert.Equal(t, "https://puzzles.example", cfg.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "not found")

	_, err = Load(writeConfig(t, "listen: [unclosed"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "puzzle:\n  default_size: 50\n  max_size: 20\n"))
	assert.ErrorContains(t, err, "max_size")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero size":    func(c *Config) { c.Puzzle.DefaultSize = 0 },
		"zero words":   func(c *Config) { c.Puzzle.MaxWords = 0 },
		"no listen":    func(c *Config) { c.Listen = "" },
		"bad level":    func(c *Config) { c.Log.Level = "loud" },
		"bad format":   func(c *Config) { c.Log.Format = "xml" },
		"zero limits":  func(c *Config) { c.Limits.MovesPerSecond = 0 },
		"size too big": func(c *Config) { c.Puzzle.DefaultSize = c.Puzzle.MaxSize + 1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
