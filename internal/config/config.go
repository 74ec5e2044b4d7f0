// Package config loads settings for the document pipeline from an optional
// YAML file and from environment variables. Environment values win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Worker modes.
const (
	WorkerModeInProcess  = "inprocess"
	WorkerModeSubprocess = "subprocess"
)

// Config holds all settings. Zero values are replaced by Default().
type Config struct {
	Worker   WorkerConfig   `yaml:"worker"`
	Handles  HandlesConfig  `yaml:"handles"`
	Renderer RendererConfig `yaml:"renderer"`
	History  HistoryConfig  `yaml:"history"`
	OCR      OCRConfig      `yaml:"ocr"`
	Log      LogConfig      `yaml:"log"`
}

// WorkerConfig controls how transform workers are spawned.
type WorkerConfig struct {
	Mode        string   `yaml:"mode" validate:"oneof=inprocess subprocess"`
	Binary      string   `yaml:"binary" validate:"required_if=Mode subprocess"`
	Concurrency int      `yaml:"concurrency" validate:"min=1,max=64"`
	Timeout     Duration `yaml:"timeout"`
}

// HandlesConfig controls resource handle expiry.
type HandlesConfig struct {
	TTL Duration `yaml:"ttl"`
}

// RendererConfig points at the page rasterizer.
type RendererConfig struct {
	Binary       string `yaml:"binary" validate:"required"`
	PreviewWidth int    `yaml:"preview_width" validate:"min=16,max=2048"`
}

// HistoryConfig controls the activity log.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries" validate:"min=0"`
}

// OCRConfig tunes text recognition.
type OCRConfig struct {
	Languages []string `yaml:"languages" validate:"dive,required"`
	DPI       int      `yaml:"dpi" validate:"min=0,max=1200"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration. A zero worker timeout means
// transforms run until they finish.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Mode:        WorkerModeInProcess,
			Binary:      "pdf-worker",
			Concurrency: 4,
		},
		Handles:  HandlesConfig{TTL: Duration{30 * time.Minute}},
		Renderer: RendererConfig{Binary: "pdftoppm", PreviewWidth: 160},
		History:  HistoryConfig{MaxEntries: 50},
		OCR:      OCRConfig{Languages: []string{"eng"}, DPI: 144},
		Log:      LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Worker.Mode = GetEnv("DOCPIPE_WORKER_MODE", c.Worker.Mode)
	c.Worker.Binary = GetEnv("DOCPIPE_WORKER_BINARY", c.Worker.Binary)
	c.Worker.Concurrency = GetEnvInt("DOCPIPE_WORKER_CONCURRENCY", c.Worker.Concurrency)
	c.Worker.Timeout.Duration = GetEnvDuration("DOCPIPE_WORKER_TIMEOUT", c.Worker.Timeout.Duration)
	c.Handles.TTL.Duration = GetEnvDuration("DOCPIPE_HANDLE_TTL", c.Handles.TTL.Duration)
	c.Renderer.Binary = GetEnv("DOCPIPE_RENDERER_BINARY", c.Renderer.Binary)
	c.History.Path = GetEnv("DOCPIPE_HISTORY_PATH", c.History.Path)
	c.History.MaxEntries = GetEnvInt("DOCPIPE_HISTORY_MAX", c.History.MaxEntries)
	if langs := GetEnv("DOCPIPE_OCR_LANGUAGES", ""); langs != "" {
		c.OCR.Languages = strings.Split(langs, "+")
	}
	c.Log.Level = GetEnv("DOCPIPE_LOG_LEVEL", c.Log.Level)
	c.Log.File = GetEnv("DOCPIPE_LOG_FILE", c.Log.File)
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Worker.Timeout.Duration < 0 || c.Handles.TTL.Duration < 0 {
		return fmt.Errorf("invalid configuration: durations must not be negative")
	}
	return nil
}
