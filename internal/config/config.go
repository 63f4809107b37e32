// Package config loads dynapatch's optional TOML configuration.
//
// The file is not required: every field has a default, and command-line
// arguments override what the file says. It is useful for pinning a font
// family or for keeping native modules outside a repacked archive.
package config

//go:generate go run ../../cmd/genconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/dynapatch/internal/logger"
)

// CurrentVersion is the newest config schema version this build reads.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Font holds the font injected into dynalist.asar.
	Font FontConfig `toml:"font"`
	// Archive holds repacking settings.
	Archive ArchiveConfig `toml:"archive"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// FontConfig holds font injection settings.
type FontConfig struct {
	// Family is used when no font name is given on the command line.
	Family string `toml:"family"`
}

// ArchiveConfig holds repacking settings.
type ArchiveConfig struct {
	// Unpack lists doublestar globs, relative to the archive root, for files
	// stored in <archive>.unpacked/ instead of inside the archive.
	Unpack []string `toml:"unpack"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// File is an optional log file path; empty logs to the console only.
	File string `toml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Archive: ArchiveConfig{
			Unpack: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads the config at path. A missing file yields [DefaultConfig].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d is newer than supported version %d", c.Version, CurrentVersion)
	}

	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, error, or fail", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	for _, pat := range c.Archive.Unpack {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("invalid archive.unpack pattern %q", pat)
		}
	}

	if strings.ContainsAny(c.Font.Family, "\r\n") {
		return fmt.Errorf("font.family must be a single line")
	}

	return nil
}
