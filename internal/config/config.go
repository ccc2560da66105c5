// Package config holds process configuration and its layered loader.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel  string `koanf:"log_level"`
	// LogFormat is console for humans or json.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, also writes JSON logs to a rotating file.
	LogFile   string `koanf:"log_file"`

	// Addr is the HTTP listen address for serve.
	Addr string `koanf:"addr"`

	AssetsDir            string `koanf:"assets_dir"`
	ModelFile            string `koanf:"model_file"`
	MetadataFile         string `koanf:"metadata_file"`
	IllustrationCategory string `koanf:"illustration_category"`

	// ORTLibrary is the path to the onnxruntime shared library.
	ORTLibrary string `koanf:"ort_library"`

	// LoadTickStep and LoadTickIntervalMS shape the cosmetic load progress.
	LoadTickStep       int `koanf:"load_tick_step"`
	LoadTickIntervalMS int `koanf:"load_tick_interval_ms"`

	MetricsEnabled bool `koanf:"metrics_enabled"`
	MaxUploadMB    int  `koanf:"max_upload_mb"`
}

func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "console",
		Addr:                 ":8080",
		AssetsDir:            "assets",
		ModelFile:            "model.onnx",
		MetadataFile:         "model_metadata.json",
		IllustrationCategory: "melanoma",
		LoadTickStep:         10,
		LoadTickIntervalMS:   200,
		MetricsEnabled:       true,
		MaxUploadMB:          10,
	}
}

// ModelPath resolves ModelFile against AssetsDir unless it is absolute.
func (c *Config) ModelPath() string {
	return c.resolve(c.ModelFile)
}

func (c *Config) MetadataPath() string {
	if c.MetadataFile == "" {
		return ""
	}
	return c.resolve(c.MetadataFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.AssetsDir, name)
}

func (c *Config) LoadTickInterval() time.Duration {
	return time.Duration(c.LoadTickIntervalMS) * time.Millisecond
}

func (c *Config) Validate() error {
	if c.ModelFile == "" {
		return fmt.Errorf("%w: model_file must not be empty", ErrInvalidConfig)
	}
	if c.LoadTickStep <= 0 || c.LoadTickStep > 100 {
		return fmt.Errorf("%w: load_tick_step must be in 1..100, got %d", ErrInvalidConfig, c.LoadTickStep)
	}
	if c.LoadTickIntervalMS < 0 {
		return fmt.Errorf("%w: load_tick_interval_ms must not be negative", ErrInvalidConfig)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log_format must be console or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
