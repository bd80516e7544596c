package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OPSCHAT_"

// Config represents the global ~/.opschat/config.toml. The auth token is
// never stored in the file; it comes from OPSCHAT_TOKEN or token_file.
type Config struct {
	DefaultSession string `toml:"default_session" env:"SESSION"`
	UserID         string `toml:"user_id" env:"USER_ID"`
	ServerURL      string `toml:"server_url" env:"SERVER_URL"`
	APIURL         string `toml:"api_url" env:"API_URL"`
	TokenFile      string `toml:"token_file,omitempty" env:"TOKEN_FILE"`
	Token          string `toml:"-" env:"TOKEN"`
	LogLevel       string `toml:"log_level,omitempty" env:"LOG_LEVEL"`

	Reconnect     Reconnect     `toml:"reconnect" envPrefix:"RECONNECT_"`
	Notifications Notifications `toml:"notifications" envPrefix:"NOTIFY_"`
	Typing        Typing        `toml:"typing" envPrefix:"TYPING_"`
	Network       Network       `toml:"network" envPrefix:"NETWORK_"`
}

// Reconnect bounds the transport retry delay.
type Reconnect struct {
	InitialInterval time.Duration `toml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `toml:"max_interval" env:"MAX_INTERVAL"`
}

// Notifications configures toasts.
type Notifications struct {
	Capacity int  `toml:"capacity" env:"CAPACITY"`
	Sound    bool `toml:"sound" env:"SOUND"`
}

// Typing configures the outbound typing debounce.
type Typing struct {
	QuietPeriod time.Duration `toml:"quiet_period" env:"QUIET_PERIOD"`
}

// Network configures the connectivity probe.
type Network struct {
	ProbeInterval time.Duration `toml:"probe_interval" env:"PROBE_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL: "ws://localhost:8080/ws",
		APIURL:    "http://localhost:8080/api",
		Reconnect: Reconnect{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		Notifications: Notifications{Capacity: 20, Sound: true},
		Typing:        Typing{QuietPeriod: 3 * time.Second},
		Network:       Network{ProbeInterval: 5 * time.Second},
	}
}

// Load reads config from the given path over the defaults. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv reads the optional file at path, then applies OPSCHAT_*
// environment overrides from environ (the process environment when nil).
func LoadWithEnv(path string, environ map[string]string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := ApplyEnv(cfg, environ); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with OPSCHAT_* variables. Unset variables leave
// fields untouched.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields a daemon needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("config: user_id is required")
	}
	if err := checkURL("server_url", c.ServerURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if err := checkURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if c.Reconnect.InitialInterval <= 0 || c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		return fmt.Errorf("config: reconnect intervals %s..%s are invalid", c.Reconnect.InitialInterval, c.Reconnect.MaxInterval)
	}
	if c.Notifications.Capacity <= 0 {
		return errors.New("config: notifications.capacity must be positive")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: %s %q is not an absolute url", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("config: %s scheme %q not one of %v", field, u.Scheme, schemes)
}

// ResolveToken returns the token from the environment, else from
// token_file. A missing token yields "" and no error.
func (c *Config) ResolveToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	if c.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
