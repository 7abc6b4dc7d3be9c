// Package config provides configuration parsing for sysmon-pulse.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYSMON_"

// Config represents the sysmon-pulse configuration.
type Config struct {
	// Monitor holds tick loop settings.
	Monitor MonitorConfig `yaml:"monitor"`

	// Sampler holds OS query settings.
	Sampler SamplerConfig `yaml:"sampler"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`
}

// MonitorConfig holds tick loop settings.
type MonitorConfig struct {
	// Interval is the tick period (e.g. "1s", "500ms").
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	// WindowSize is the number of samples kept per scalar series.
	WindowSize int `yaml:"window_size" validate:"gt=0"`
}

// SamplerConfig holds OS query settings.
type SamplerConfig struct {
	// DiskPath is the mount point whose usage is reported.
	DiskPath string `yaml:"disk_path" validate:"required"`
	// QueryTimeout bounds each metric subgroup query.
	QueryTimeout time.Duration `yaml:"query_timeout" validate:"gt=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// Format is one of auto, text, json. Auto picks text on a terminal.
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:   time.Second,
			WindowSize: 61,
		},
		Sampler: SamplerConfig{
			DiskPath:     "/",
			QueryTimeout: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/sysmon-pulse/config.yaml, falling
// back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sysmon-pulse", "config.yaml")
}

// LoadConfig loads configuration from a YAML file, merging with defaults.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from SYSMON_* environment variables. lookup is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sINTERVAL: %w", EnvPrefix, err)
		}
		c.Monitor.Interval = d
	}
	if v, ok := lookup(EnvPrefix + "WINDOW_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWINDOW_SIZE: %w", EnvPrefix, err)
		}
		c.Monitor.WindowSize = n
	}
	if v, ok := lookup(EnvPrefix + "DISK_PATH"); ok {
		c.Sampler.DiskPath = v
	}
	if v, ok := lookup(EnvPrefix + "QUERY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sQUERY_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Sampler.QueryTimeout = d
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	return nil
}

var validate = newValidator()

// newValidator reports field names by their yaml keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration for required fields and logical
// consistency. The first violation is reported as "section.key ...".
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "gt":
		return fmt.Errorf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed %q validation", field, fe.Tag())
	}
}
