// Package config loads the core's configuration from JSON-with-comments files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/logging"
)

// FileName is the project config file looked up in the working directory.
const FileName = "techniquebook.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir       string `json:"data_dir"`
	MediaDir      string `json:"media_dir,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	SeedFile      string `json:"seed_file,omitempty"`
	ThumbnailSize int    `json:"thumbnail_size,omitempty"`

	// Source is the config file that was loaded, empty when defaults were used.
	Source string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:       "data",
		LogLevel:      "info",
		ThumbnailSize: 200,
	}
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir          string // if empty, os.Getwd() is used
	ConfigPath       string // explicit config file; must exist when set
	DataDirOverride  string
	LogLevelOverride string
}

// Load builds the configuration with this precedence (highest wins):
// defaults, the project file (techniquebook.json in WorkDir, optional) or the explicit
// ConfigPath, then overrides. Relative paths are resolved against WorkDir; MediaDir
// defaults to <DataDir>/media.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, errors.Wrap(errors.ErrConfig, "cannot get working directory", err)
		}
	}

	cfg := DefaultConfig()

	path := input.ConfigPath
	mustExist := path != ""
	if path == "" {
		path = FileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	fileCfg, loaded, err := loadFile(path, mustExist)
	if err != nil {
		return Config{}, err
	}
	if loaded {
		cfg = merge(cfg, fileCfg)
		cfg.Source = path
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}
	if input.LogLevelOverride != "" {
		cfg.LogLevel = input.LogLevelOverride
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.DataDir = resolve(workDir, cfg.DataDir)
	if cfg.MediaDir == "" {
		cfg.MediaDir = filepath.Join(cfg.DataDir, "media")
	} else {
		cfg.MediaDir = resolve(workDir, cfg.MediaDir)
	}
	if cfg.SeedFile != "" {
		cfg.SeedFile = resolve(workDir, cfg.SeedFile)
	}
	return cfg, nil
}

// Level returns the parsed log level.
func (c Config) Level() logging.LogLevel {
	return logging.ParseLevel(c.LogLevel)
}

func resolve(workDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}

// loadFile loads a config file. If mustExist is false, a missing file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}
		return Config{}, false, errors.Wrap(errors.ErrConfig, "cannot read config file "+path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, errors.Wrap(errors.ErrConfig, "invalid config file "+path, err)
	}
	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit empty data_dir would silently fall back to the default.
	var raw map[string]any
	_ = json.Unmarshal(standardized, &raw)
	if val, ok := raw["data_dir"]; ok {
		if s, isString := val.(string); isString && s == "" {
			return Config{}, fmt.Errorf("data_dir must not be empty")
		}
	}
	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.MediaDir != "" {
		base.MediaDir = overlay.MediaDir
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.SeedFile != "" {
		base.SeedFile = overlay.SeedFile
	}
	if overlay.ThumbnailSize != 0 {
		base.ThumbnailSize = overlay.ThumbnailSize
	}
	return base
}

func validate(cfg Config) error {
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return errors.New(errors.ErrConfig, fmt.Sprintf("unknown log_level %q", cfg.LogLevel))
	}
	if cfg.ThumbnailSize < 16 || cfg.ThumbnailSize > 2048 {
		return errors.New(errors.ErrConfig, fmt.Sprintf("thumbnail_size %d out of range [16, 2048]", cfg.ThumbnailSize))
	}
	return nil
}
