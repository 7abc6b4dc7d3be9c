package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Monitor.Interval != time.Second {
		t.Errorf("expected Interval=1s, got %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.WindowSize != 61 {
		t.Errorf("expected WindowSize=61, got %d", cfg.Monitor.WindowSize)
	}
	if cfg.Sampler.DiskPath != "/" {
		t.Errorf("expected DiskPath=/, got %s", cfg.Sampler.DiskPath)
	}
	if cfg.Sampler.QueryTimeout != 2*time.Second {
		t.Errorf("expected QueryTimeout=2s, got %s", cfg.Sampler.QueryTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level=info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("expected Log.Format=auto, got %s", cfg.Log.Format)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestLoadConfigNonExistent(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error for non-existent file: %v", err)
	}
	if cfg.Monitor.Interval != time.Second {
		t.Errorf("expected default Interval=1s, got %s", cfg.Monitor.Interval)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error for empty path: %v", err)
	}
	if cfg.Monitor.WindowSize != 61 {
		t.Errorf("expected default WindowSize=61, got %d", cfg.Monitor.WindowSize)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
monitor:
  interval: 250ms
sampler:
  disk_path: /home
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Monitor.Interval != 250*time.Millisecond {
		t.Errorf("expected Interval=250ms, got %s", cfg.Monitor.Interval)
	}
	if cfg.Sampler.DiskPath != "/home" {
		t.Errorf("expected DiskPath=/home, got %s", cfg.Sampler.DiskPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected Level=debug, got %s", cfg.Log.Level)
	}

	// Unset keys keep their defaults.
	if cfg.Monitor.WindowSize != 61 {
		t.Errorf("expected default WindowSize=61, got %d", cfg.Monitor.WindowSize)
	}
	if cfg.Sampler.QueryTimeout != 2*time.Second {
		t.Errorf("expected default QueryTimeout=2s, got %s", cfg.Sampler.QueryTimeout)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("monitor: [not, a, map"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("monitor:\n  interval: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for unparseable interval")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Monitor.Interval = 0 },
			wantErr: "monitor.interval must be greater than 0",
		},
		{
			name:    "negative window",
			mutate:  func(c *Config) { c.Monitor.WindowSize = -1 },
			wantErr: "monitor.window_size must be greater than 0",
		},
		{
			name:    "empty disk path",
			mutate:  func(c *Config) { c.Sampler.DiskPath = "" },
			wantErr: "sampler.disk_path is required",
		},
		{
			name:    "zero query timeout",
			mutate:  func(c *Config) { c.Sampler.QueryTimeout = 0 },
			wantErr: "sampler.query_timeout must be greater than 0",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level must be one of",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SYSMON_INTERVAL":      "5s",
		"SYSMON_WINDOW_SIZE":   "120",
		"SYSMON_DISK_PATH":     "/var",
		"SYSMON_QUERY_TIMEOUT": "750ms",
		"SYSMON_LOG_LEVEL":     "WARN",
		"SYSMON_LOG_FORMAT":    "json",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Monitor.Interval != 5*time.Second {
		t.Errorf("Interval = %s, want 5s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.WindowSize != 120 {
		t.Errorf("WindowSize = %d, want 120", cfg.Monitor.WindowSize)
	}
	if cfg.Sampler.DiskPath != "/var" {
		t.Errorf("DiskPath = %s, want /var", cfg.Sampler.DiskPath)
	}
	if cfg.Sampler.QueryTimeout != 750*time.Millisecond {
		t.Errorf("QueryTimeout = %s, want 750ms", cfg.Sampler.QueryTimeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Format = %s, want json", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overridden config should validate: %v", err)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	for _, key := range []string{"SYSMON_INTERVAL", "SYSMON_WINDOW_SIZE", "SYSMON_QUERY_TIMEOUT"} {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return "garbage", true
				}
				return "", false
			}
			if err := DefaultConfig().ApplyEnv(lookup); err == nil {
				t.Errorf("expected error for %s=garbage", key)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("SYSMON_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYSMON_TEST_DOTENV", "")
	os.Unsetenv("SYSMON_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(tmpDir, "missing.env"), envPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("SYSMON_TEST_DOTENV"); got != "loaded" {
		t.Errorf("SYSMON_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("SYSMON_TEST_KEEP=fromfile\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYSMON_TEST_KEEP", "fromenv")

	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("SYSMON_TEST_KEEP"); got != "fromenv" {
		t.Errorf("SYSMON_TEST_KEEP = %q, want fromenv", got)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := DefaultPath(), filepath.Join("/tmp/xdg", "sysmon-pulse", "config.yaml"); got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}
}
