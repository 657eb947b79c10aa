package logger

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	validLevels  = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	validFormats = []string{"json", "console"}
	validOutputs = []string{"console", "file", "both"}
)

// Config defines the logger configuration
type Config struct {
	Level            string     `mapstructure:"level"`  // debug, info, warn, error
	Format           string     `mapstructure:"format"` // json, console
	Output           string     `mapstructure:"output"` // console, file, both
	File             FileConfig `mapstructure:"file"`
	EnableCaller     bool       `mapstructure:"enablecaller"`
	EnableStacktrace bool       `mapstructure:"enablestacktrace"` // stacktrace for error level and above
}

// FileConfig defines rotated file output
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"` // megabytes
	MaxAge     int    `mapstructure:"maxage"`  // days
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Format:           "json",
		Output:           "console",
		EnableCaller:     true,
		EnableStacktrace: true,
		File: FileConfig{
			Filename:   "logs/blog.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

// Validate validates the logger configuration
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, strings.ToLower(c.Level)) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Level, strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validFormats, c.Format) {
		return fmt.Errorf("invalid log format %q, must be 'json' or 'console'", c.Format)
	}
	if !slices.Contains(validOutputs, c.Output) {
		return fmt.Errorf("invalid log output %q, must be 'console', 'file' or 'both'", c.Output)
	}

	if c.Output == "console" {
		return nil
	}

	switch {
	case c.File.Filename == "":
		return errors.New("log file filename is required when output is 'file' or 'both'")
	case c.File.MaxSize <= 0:
		return errors.New("log file maxsize must be greater than 0")
	case c.File.MaxAge <= 0:
		return errors.New("log file maxage must be greater than 0")
	case c.File.MaxBackups < 0:
		return errors.New("log file maxbackups must be greater than or equal to 0")
	}

	return nil
}
