package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tilexfer/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transfer.BlockSize != 200 {
		t.Fatalf("expected default block size, got %d", cfg.Transfer.BlockSize)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console format, got %q", cfg.Logging.Format)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := strings.Join([]string{
		"[transfer]",
		"block_size = 50",
		"lease_msec = 30000",
		"max_attempts = 3",
		"",
		"[logging]",
		`format = "json"`,
		`level = "debug"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transfer.BlockSize != 50 || cfg.Transfer.LeaseMsec != 30000 || cfg.Transfer.MaxAttempts != 3 {
		t.Fatalf("unexpected transfer section: %+v", cfg.Transfer)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero block size", func(c *config.Config) { c.Transfer.BlockSize = 0 }},
		{"negative lease", func(c *config.Config) { c.Transfer.LeaseMsec = -1 }},
		{"zero attempts", func(c *config.Config) { c.Transfer.MaxAttempts = 0 }},
		{"bad format", func(c *config.Config) { c.Logging.Format = "yaml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
