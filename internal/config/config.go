package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Transfer contains worker timing and batching defaults.
type Transfer struct {
	BlockSize     int `toml:"block_size"`
	LeaseMsec     int `toml:"lease_msec"`
	DBTimeoutMsec int `toml:"db_timeout_msec"`
	MaxAttempts   int `toml:"max_attempts"`
	RampSec       int `toml:"ramp_sec"`
	CodecThreads  int `toml:"codec_threads"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Paths contains directory configuration.
type Paths struct {
	LogDir string `toml:"log_dir"`
}

// Config encapsulates all configuration values for tilexfer.
type Config struct {
	Transfer Transfer `toml:"transfer"`
	Logging  Logging  `toml:"logging"`
	Paths    Paths    `toml:"paths"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tilexfer/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults are returned. The returned config has all path
// fields expanded and normalized.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.Transfer.BlockSize <= 0 {
		return errors.New("transfer.block_size must be positive")
	}
	if c.Transfer.LeaseMsec < 0 {
		return errors.New("transfer.lease_msec must not be negative")
	}
	if c.Transfer.DBTimeoutMsec < 0 {
		return errors.New("transfer.db_timeout_msec must not be negative")
	}
	if c.Transfer.MaxAttempts <= 0 {
		return errors.New("transfer.max_attempts must be positive")
	}
	if c.Transfer.RampSec < 0 {
		return errors.New("transfer.ramp_sec must not be negative")
	}
	if c.Transfer.CodecThreads <= 0 {
		return errors.New("transfer.codec_threads must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates directories that must exist before use.
func (c *Config) EnsureDirectories() error {
	if c.Paths.LogDir == "" || c.Paths.LogDir == "." {
		return nil
	}
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log dir: %w", err)
	}
	return nil
}

func (c *Config) normalize() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Paths.LogDir != "" {
		expanded, err := expandPath(c.Paths.LogDir)
		if err != nil {
			return err
		}
		c.Paths.LogDir = expanded
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
