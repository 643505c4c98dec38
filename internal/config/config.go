// Package config holds the explicit, immutable configuration passed to every
// pipeline component: the buffer size, file window offsets, label table,
// number formatting and model location.
package config

import (
	"time"

	"golang.org/x/text/language"

	"github.com/Brownie44l1/eeg-api/internal/errors"
)

type Config struct {
	Signal SignalConfig `mapstructure:"signal" toml:"signal" json:"signal" yaml:"signal"`
	Labels []string     `mapstructure:"labels" toml:"labels" json:"labels" yaml:"labels"`
	Format FormatConfig `mapstructure:"format" toml:"format" json:"format" yaml:"format"`
	Model  ModelConfig  `mapstructure:"model" toml:"model" json:"model" yaml:"model"`
	Server ServerConfig `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Render RenderConfig `mapstructure:"render" toml:"render" json:"render" yaml:"render"`
	Log    LogConfig    `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

type SignalConfig struct {
	// Size is the number of samples in one window
	Size int `mapstructure:"size" toml:"size" json:"size" yaml:"size"`
	// HeaderOffset lines are skipped at the top of an imported file
	HeaderOffset int `mapstructure:"header_offset" toml:"header_offset" json:"header_offset" yaml:"header_offset"`
	// Skip further lines are skipped after the header
	Skip int `mapstructure:"skip" toml:"skip" json:"skip" yaml:"skip"`
	// FlatValue is written to every sample when a window has max == min
	FlatValue float64 `mapstructure:"flat_value" toml:"flat_value" json:"flat_value" yaml:"flat_value"`
	// DefaultValue fills a buffer created by drawing
	DefaultValue float64 `mapstructure:"default_value" toml:"default_value" json:"default_value" yaml:"default_value"`
}

type FormatConfig struct {
	Locale   string `mapstructure:"locale" toml:"locale" json:"locale" yaml:"locale"`
	Decimals int    `mapstructure:"decimals" toml:"decimals" json:"decimals" yaml:"decimals"`
}

type ModelConfig struct {
	Path         string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
	MetadataPath string `mapstructure:"metadata_path" toml:"metadata_path" json:"metadata_path" yaml:"metadata_path"`
	InputName    string `mapstructure:"input_name" toml:"input_name" json:"input_name" yaml:"input_name"`
	OutputName   string `mapstructure:"output_name" toml:"output_name" json:"output_name" yaml:"output_name"`
	// LibraryPath points at the onnxruntime shared library; empty uses the system default
	LibraryPath string `mapstructure:"library_path" toml:"library_path" json:"library_path" yaml:"library_path"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes" toml:"max_upload_bytes" json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// SessionTTL closes sessions with no open socket after this long unused; zero keeps them
	SessionTTL time.Duration `mapstructure:"session_ttl" toml:"session_ttl" json:"session_ttl" yaml:"session_ttl"`
}

type RenderConfig struct {
	Width    int `mapstructure:"width" toml:"width" json:"width" yaml:"width"`
	Height   int `mapstructure:"height" toml:"height" json:"height" yaml:"height"`
	YPadding int `mapstructure:"y_padding" toml:"y_padding" json:"y_padding" yaml:"y_padding"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`
}

// Start returns the first line index of the sample window in an imported file.
func (s SignalConfig) Start() int {
	return s.HeaderOffset + s.Skip
}

// End returns one past the last line index of the sample window.
func (s SignalConfig) End() int {
	return s.Start() + s.Size
}

// Tag parses the configured locale.
func (f FormatConfig) Tag() (language.Tag, error) {
	tag, err := language.Parse(f.Locale)
	if err != nil {
		return language.Und, errors.Wrapf(err, "invalid locale %q", f.Locale)
	}
	return tag, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	if c.Signal.Size < 2 {
		return errors.Newf("signal.size must be at least 2, got %d", c.Signal.Size)
	}
	if c.Signal.HeaderOffset < 0 || c.Signal.Skip < 0 {
		return errors.Newf("signal offsets must be non-negative (header_offset=%d, skip=%d)",
			c.Signal.HeaderOffset, c.Signal.Skip)
	}
	if len(c.Labels) == 0 {
		return errors.New("labels must not be empty")
	}
	if c.Format.Decimals < 0 {
		return errors.Newf("format.decimals must be non-negative, got %d", c.Format.Decimals)
	}
	if _, err := c.Format.Tag(); err != nil {
		return err
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.Newf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Server.SessionTTL < 0 {
		return errors.Newf("server.session_ttl must be non-negative, got %s", c.Server.SessionTTL)
	}
	if 2*c.Render.YPadding >= c.Render.Height {
		return errors.Newf("render.y_padding %d leaves no room in height %d", c.Render.YPadding, c.Render.Height)
	}
	return nil
}
