package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
	"github.com/renkit/renotize/pkg/env"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = ".renotize.yaml"

// Config represents the complete renotize configuration
type Config struct {
	Sign     SignConfig     `yaml:"sign"`
	Notarize NotarizeConfig `yaml:"notarize"`
	Staple   StapleConfig   `yaml:"staple"`
	DMG      DMGConfig      `yaml:"dmg"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// SignConfig contains the signing identity. Either key_file and cert_file
// or p12_file must be set.
// SECURITY NOTE: passwords should come from env(VAR) references rather than
// being written into the file.
type SignConfig struct {
	KeyFile      string `yaml:"key_file,omitempty"`
	CertFile     string `yaml:"cert_file,omitempty"`
	KeyPassword  string `yaml:"key_password,omitempty"`
	P12File      string `yaml:"p12_file,omitempty"`
	P12Password  string `yaml:"p12_password,omitempty"`
	Entitlements string `yaml:"entitlements,omitempty"`
}

// NotarizeConfig contains App Store Connect API access and polling limits.
// Durations use Go syntax ("30s", "1h").
type NotarizeConfig struct {
	APIKeyFile    string `yaml:"api_key_file,omitempty"`
	IssuerID      string `yaml:"issuer_id,omitempty"`
	KeyID         string `yaml:"key_id,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty"`
	PollInterval  string `yaml:"poll_interval,omitempty"`
	MaxWait       string `yaml:"max_wait,omitempty"`
	QueryRetries  *int   `yaml:"query_retries,omitempty"`
	RetryInterval string `yaml:"retry_interval,omitempty"`
}

// StapleConfig controls ticket stapling.
type StapleConfig struct {
	Retries *int   `yaml:"retries,omitempty"`
	Delay   string `yaml:"delay,omitempty"`
	// Assess runs a Gatekeeper assessment after stapling.
	Assess bool `yaml:"assess,omitempty"`
}

// DMGConfig contains disk image settings
type DMGConfig struct {
	VolumeName string `yaml:"volume_name,omitempty"`
	Overwrite  bool   `yaml:"overwrite,omitempty"`
}

// ToolsConfig overrides the external tools looked up on PATH.
type ToolsConfig struct {
	Rcodesign string `yaml:"rcodesign,omitempty"`
	Xcrun     string `yaml:"xcrun,omitempty"`
	Hdiutil   string `yaml:"hdiutil,omitempty"`
	Ditto     string `yaml:"ditto,omitempty"`
}

// Defaults for unset values.
const (
	DefaultPollInterval  = "30s"
	DefaultMaxWait       = "1h"
	DefaultQueryRetries  = 5
	DefaultRetryInterval = "2s"
	DefaultStapleRetries = 3
	DefaultStapleDelay   = "10s"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Notarize.PollInterval, DefaultPollInterval)
	setDefault(&c.Notarize.MaxWait, DefaultMaxWait)
	setDefault(&c.Notarize.RetryInterval, DefaultRetryInterval)
	if c.Notarize.QueryRetries == nil {
		n := DefaultQueryRetries
		c.Notarize.QueryRetries = &n
	}
	setDefault(&c.Staple.Delay, DefaultStapleDelay)
	if c.Staple.Retries == nil {
		n := DefaultStapleRetries
		c.Staple.Retries = &n
	}
	setDefault(&c.Tools.Rcodesign, "rcodesign")
	setDefault(&c.Tools.Xcrun, "xcrun")
	setDefault(&c.Tools.Hdiutil, "hdiutil")
	setDefault(&c.Tools.Ditto, "ditto")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Duration parses a duration field; empty values yield def.
func Duration(value, field string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	return d, nil
}

// IntValue dereferences an optional integer field.
func IntValue(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Load reads the config at path. When path is the default and no such file
// exists, the defaults are returned; an explicitly named file must exist.
func Load(path string, explicit bool) (*Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
	}
	return LoadConfig(path)
}

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	cleanPath, err := validateConfigPath(path)
	if err != nil {
		return nil, err
	}

	data, err := readConfigFile(cleanPath)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if strings.TrimSpace(string(data)) != "" {
		file, err := parser.ParseBytes(data, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if len(file.Docs) > 0 && file.Docs[0].Body != nil {
			if err := env.SubstituteEnvVarsNode(file.Docs[0].Body); err != nil {
				return nil, fmt.Errorf("environment variable substitution failed: %w", err)
			}
			if err := yaml.NodeToValue(file.Docs[0].Body, config, yaml.Strict()); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	config.ApplyDefaults()
	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(path string, config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Use restrictive permissions (0600) since config may contain sensitive data
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfigPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	wd = filepath.Clean(wd)

	// Paths under the working directory must stay local to it. Absolute
	// paths elsewhere are allowed.
	if strings.HasPrefix(cleanPath, wd+string(filepath.Separator)) || cleanPath == wd {
		relPath, err := filepath.Rel(wd, cleanPath)
		if err != nil {
			return "", fmt.Errorf("invalid config path: %w", err)
		}
		if !filepath.IsLocal(relPath) {
			return "", fmt.Errorf("invalid config path: path traversal detected")
		}
	}

	return cleanPath, nil
}

// maxConfigSize bounds the config file read into memory.
const maxConfigSize = 1024 * 1024

func readConfigFile(cleanPath string) ([]byte, error) {
	// os.Stat follows symlinks, so the target must be a regular file
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: maximum size is 1MB")
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return data, nil
}
