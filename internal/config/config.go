// Package config loads the service configuration from an optional YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen = ":8080"
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// DefaultYAML documents every key with its default value.
const DefaultYAML = `# wordsearch configuration
listen: ":8080"

# Public URL of the service, printed as a QR code on exported PDFs.
base_url: ""

log:
  level: info     # debug, info, warn, error
  format: text    # text or json

puzzle:
  default_size: 15
  max_size: 40
  max_words: 60

# Leave project_id empty to disable word extraction from photos.
gemini:
  project_id: ""
  region: europe-west1
  model: gemini-2.5-flash

limits:
  generate_per_minute: 20
  moves_per_second: 60
`

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PuzzleConfig bounds what clients may ask the generator for.
type PuzzleConfig struct {
	DefaultSize int `yaml:"default_size"`
	MaxSize     int `yaml:"max_size"`
	MaxWords    int `yaml:"max_words"`
}

// GeminiConfig points at the Vertex AI project used for photo analysis.
type GeminiConfig struct {
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

// LimitsConfig holds per-IP rate limits.
type LimitsConfig struct {
	GeneratePerMinute int `yaml:"generate_per_minute"`
	MovesPerSecond    int `yaml:"moves_per_second"`
}

// Config is the full service configuration.
type Config struct {
	Listen  string       `yaml:"listen"`
	BaseURL string       `yaml:"base_url"`
	Log     LogConfig    `yaml:"log"`
	Puzzle  PuzzleConfig `yaml:"puzzle"`
	Gemini  GeminiConfig `yaml:"gemini"`
	Limits  LimitsConfig `yaml:"limits"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: defaultListen,
		Log:    LogConfig{Level: "info", Format: "text"},
		Puzzle: PuzzleConfig{DefaultSize: 15, MaxSize: 40, MaxWords: 60},
		Gemini: GeminiConfig{Region: defaultRegion, Model: defaultModel},
		Limits: LimitsConfig{GeneratePerMinute: 20, MovesPerSecond: 60},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file. A missing file is an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with PORT, BASE_URL, GCP_PROJECT_ID and
// GCP_REGION when they are set.
func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Listen = ":" + port
	}
	if v := getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("GCP_PROJECT_ID"); v != "" {
		c.Gemini.ProjectID = v
	}
	if v := getenv("GCP_REGION"); v != "" {
		c.Gemini.Region = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Puzzle.DefaultSize <= 0 {
		return fmt.Errorf("puzzle.default_size must be positive, got %d", c.Puzzle.DefaultSize)
	}
	if c.Puzzle.MaxSize < c.Puzzle.DefaultSize {
		return fmt.Errorf("puzzle.max_size (%d) cannot be smaller than default_size (%d)", c.Puzzle.MaxSize, c.Puzzle.DefaultSize)
	}
	if c.Puzzle.MaxWords <= 0 {
		return fmt.Errorf("puzzle.max_words must be positive, got %d", c.Puzzle.MaxWords)
	}
	if c.Limits.GeneratePerMinute <= 0 || c.Limits.MovesPerSecond <= 0 {
		return errors.New("limits must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
}

// NewLogger builds a slog.Logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
