package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "LAZYCAL_"

type Config struct {
	DBPath      string `koanf:"db_path" yaml:"db_path"`
	WebEnabled  bool   `koanf:"web_enabled" yaml:"web_enabled"`
	WebPort     int    `koanf:"web_port" yaml:"web_port"`
	Timezone    string `koanf:"timezone" yaml:"timezone"`
	WeekStart   string `koanf:"week_start" yaml:"week_start"`
	HorizonDays int    `koanf:"horizon_days" yaml:"horizon_days"`
	LogLevel    string `koanf:"log_level" yaml:"log_level"`
	LogPath     string `koanf:"log_path" yaml:"log_path"`
}

func Default() Config {
	return Config{
		WebPort:     8080,
		WeekStart:   "sunday",
		HorizonDays: 7,
		LogLevel:    "info",
	}
}

// Normalize fills zero values with defaults and folds unknown choices back
// to a known value, so older or hand-edited files still load.
func (c *Config) Normalize() {
	if c.WebPort <= 0 {
		c.WebPort = 8080
	}
	switch strings.ToLower(strings.TrimSpace(c.WeekStart)) {
	case "monday":
		c.WeekStart = "monday"
	default:
		c.WeekStart = "sunday"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
}

// Location resolves Timezone, falling back to the local zone when it is
// empty or unknown.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lazycal", "config.yaml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load layers defaults, the YAML file at path (when present) and LAZYCAL_
// environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	// LAZYCAL_WEB_PORT -> web_port
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg as YAML through a temp file and rename so a crash never
// leaves a truncated config behind.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	cfg.Normalize()

	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".lazycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
