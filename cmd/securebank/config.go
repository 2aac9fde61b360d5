package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "securebank.yaml"

// Settings holds the CLI configuration
type Settings struct {
	// BaseURL of the SecureBank API
	BaseURL string `yaml:"base_url"`

	// AccessToken is sent with gateway calls; login prints a fresh one
	AccessToken string `yaml:"-"`

	// KeyStore configuration
	KeyStore KeyStoreSettings `yaml:"keystore"`

	// PINLength overrides the 6-digit PIN policy
	PINLength int `yaml:"pin_length"`

	// Timeout for HTTP requests
	Timeout time.Duration `yaml:"timeout"`

	// ServerKeyTTL controls server public key caching
	ServerKeyTTL time.Duration `yaml:"server_key_ttl"`

	// Log configuration
	Log LogSettings `yaml:"log"`
}

// KeyStoreSettings selects where the wrapped key is stored
type KeyStoreSettings struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	Profile string `yaml:"profile"`
}

// LogSettings configures zerolog output
type LogSettings struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultSettings returns the default configuration
func DefaultSettings() *Settings {
	return &Settings{
		BaseURL: "http://localhost:8000",
		KeyStore: KeyStoreSettings{
			Kind: "file",
			Path: "securebank-key.json",
		},
		PINLength:    6,
		Timeout:      30 * time.Second,
		ServerKeyTTL: 5 * time.Minute,
		Log: LogSettings{
			Level:  "warn",
			Pretty: true,
		},
	}
}

// LoadSettings loads the YAML file at path, then .env, then environment
// overrides. A missing file is not an error.
func LoadSettings(path string, getenv func(string) string) (*Settings, error) {
	cfg := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Use defaults if no config file
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies SECUREBANK_* environment variables.
func ApplyEnvOverrides(cfg *Settings, getenv func(string) string) error {
	env := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	if v := env("SECUREBANK_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := env("SECUREBANK_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := env("SECUREBANK_KEYSTORE"); v != "" {
		cfg.KeyStore.Kind = v
	}
	if v := env("SECUREBANK_KEYSTORE_PATH"); v != "" {
		cfg.KeyStore.Path = v
	}
	if v := env("SECUREBANK_PROFILE"); v != "" {
		cfg.KeyStore.Profile = v
	}
	if v := env("SECUREBANK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("SECUREBANK_PIN_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECUREBANK_PIN_LENGTH: %w", err)
		}
		cfg.PINLength = n
	}
	return nil
}

// NewLogger builds the CLI logger.
func (s *Settings) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Log.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if s.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
