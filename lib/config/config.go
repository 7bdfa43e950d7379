// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable Load reads.
const EnvConfig = "RIVER_CONFIG"

// Config is the complete River configuration.
type Config struct {
	// Root is the directory River keeps its files in.
	Root string `yaml:"root"`

	Host  HostConfig  `yaml:"host"`
	Store StoreConfig `yaml:"store"`
	User  UserConfig  `yaml:"user"`
	Log   LogConfig   `yaml:"log"`
}

// HostConfig configures the connection to the local host node.
type HostConfig struct {
	// URL is the host's WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	HandshakeTimeout  Duration `yaml:"handshake_timeout"`
	ReconnectInterval Duration `yaml:"reconnect_interval"`

	// RequestAttempts is how many times one request is sent before
	// its room is marked as failed.
	RequestAttempts int      `yaml:"request_attempts"`
	RetryBackoff    Duration `yaml:"retry_backoff"`

	PingPeriod Duration `yaml:"ping_period"`

	// ReadLimit caps an inbound frame, in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

// StoreConfig configures local persistence.
type StoreConfig struct {
	// Path is the SQLite database holding the room set.
	Path string `yaml:"path"`

	// Compression is none, lz4, or zstd.
	Compression string `yaml:"compression"`

	// IdentityFile, when set, is an age identity used to seal room
	// signing keys at rest.
	IdentityFile string `yaml:"identity_file"`
}

// UserConfig identifies the local user.
type UserConfig struct {
	// SigningKeyFile holds the user's river:v1:sk: signing key.
	SigningKeyFile string `yaml:"signing_key_file"`

	// Nickname is used when creating rooms and accepting invitations
	// without an explicit nickname.
	Nickname string `yaml:"nickname"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

// Default returns the configuration used for anything the file leaves
// unset.
func Default() *Config {
	return &Config{
		Root: "${HOME}/.local/share/river",
		Host: HostConfig{
			URL:               "ws://127.0.0.1:7509/v1/contract/command",
			HandshakeTimeout:  Duration(5 * time.Second),
			ReconnectInterval: Duration(3 * time.Second),
			RequestAttempts:   3,
			RetryBackoff:      Duration(500 * time.Millisecond),
			PingPeriod:        Duration(30 * time.Second),
			ReadLimit:         16 << 20,
		},
		Store: StoreConfig{
			Path:        "${RIVER_ROOT}/river.db",
			Compression: "zstd",
		},
		User: UserConfig{
			SigningKeyFile: "${RIVER_ROOT}/signing.key",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads the file named by RIVER_CONFIG. It fails when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your river.yaml, or pass --config", EnvConfig)
	}
	return LoadFile(path)
}

// LoadFile loads path over Default and expands path variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in path fields.
// Root is expanded first and is available to the others as
// ${RIVER_ROOT}.
func (c *Config) ExpandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Root = expandVars(c.Root, vars)
	vars["RIVER_ROOT"] = c.Root

	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Store.IdentityFile = expandVars(c.Store.IdentityFile, vars)
	c.User.SigningKeyFile = expandVars(c.User.SigningKeyFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

var (
	compressions = []string{"none", "lz4", "zstd"}
	levels       = []string{"debug", "info", "warn", "error"}
)

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}

	if c.Host.URL == "" {
		errs = append(errs, errors.New("host.url is required"))
	} else if parsed, err := url.Parse(c.Host.URL); err != nil {
		errs = append(errs, fmt.Errorf("host.url: %w", err))
	} else if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("host.url scheme must be ws or wss, got %q", parsed.Scheme))
	}
	positive := map[string]Duration{
		"host.handshake_timeout":  c.Host.HandshakeTimeout,
		"host.reconnect_interval": c.Host.ReconnectInterval,
		"host.retry_backoff":      c.Host.RetryBackoff,
		"host.ping_period":        c.Host.PingPeriod,
	}
	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Host.RequestAttempts < 1 {
		errs = append(errs, fmt.Errorf("host.request_attempts must be at least 1, got %d", c.Host.RequestAttempts))
	}
	if c.Host.ReadLimit <= 0 {
		errs = append(errs, errors.New("host.read_limit must be positive"))
	}

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if !slices.Contains(compressions, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressions))
	}
	if c.User.SigningKeyFile == "" {
		errs = append(errs, errors.New("user.signing_key_file is required"))
	}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured level for log/slog.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates Root and the directories holding configured
// files.
func (c *Config) EnsurePaths() error {
	directories := []string{c.Root, filepath.Dir(c.Store.Path), filepath.Dir(c.User.SigningKeyFile)}
	if c.Store.IdentityFile != "" {
		directories = append(directories, filepath.Dir(c.Store.IdentityFile))
	}
	for _, directory := range directories {
		if directory == "" || directory == "." {
			continue
		}
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
