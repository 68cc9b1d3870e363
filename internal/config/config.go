// Package config holds the command line settings that can also come from a
// YAML file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		SampleRate int     `yaml:"sample_rate"`
		Volume     float64 `yaml:"volume"`
		LogLevel   string  `yaml:"log_level"`
		// StoreDir holds the saved document; empty means the user config
		// directory.
		StoreDir string `yaml:"store_dir"`
		MIDI     MIDI   `yaml:"midi"`
	}

	MIDI struct {
		Enabled        bool          `yaml:"enabled"`
		Include        []string      `yaml:"include"`
		Exclude        []string      `yaml:"exclude"`
		RescanInterval time.Duration `yaml:"rescan_interval"`
	}
)

//go:embed default.yml
var defaultYaml []byte

func Default() Config {
	var c Config
	if err := yaml.Unmarshal(defaultYaml, &c); err != nil {
		panic(fmt.Errorf("config: default.yml: %w", err))
	}
	return c
}

// DefaultPath is config.yml in the stepsynth user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stepsynth", "config.yml")
}

// Load overlays the file at path onto the defaults. A missing file is not an
// error unless required is set.
func Load(path string, required bool) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return c, fmt.Errorf("config: expand %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Default(), fmt.Errorf("config: %s: %w", expanded, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Volume < 0 {
		return fmt.Errorf("config: volume must not be negative, got %v", c.Volume)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
}
