package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.parley/config.toml.
type Config struct {
	DefaultInstance    string   `toml:"default_instance"`
	ListenAddr         string   `toml:"listen_addr"`
	TokenSecret        string   `toml:"token_secret"`
	TokenTTL           Duration `toml:"token_ttl"`
	SendBuffer         int      `toml:"send_buffer"`
	ConfirmAllSessions bool     `toml:"confirm_all_sessions"`
	MaxBodyLen         int      `toml:"max_body_len"`
	LogLevel           string   `toml:"log_level"`
}

// Duration is a time.Duration that decodes from TOML strings such as "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DefaultInstance: "main",
		ListenAddr:      "127.0.0.1:7420",
		TokenTTL:        Duration{24 * time.Hour},
		SendBuffer:      256,
		MaxBodyLen:      4096,
		LogLevel:        "info",
	}
}

// Load reads config from the given path. Returns nil config and error if file missing.
// Fields absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
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

// EnsureTokenSecret generates and saves a signing secret if cfg has none.
// It reports whether the file was written.
func EnsureTokenSecret(path string, cfg *Config) (bool, error) {
	if cfg.TokenSecret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generate token secret: %w", err)
	}
	cfg.TokenSecret = hex.EncodeToString(buf)
	if err := Save(path, cfg); err != nil {
		return false, fmt.Errorf("save config: %w", err)
	}
	return true, nil
}
