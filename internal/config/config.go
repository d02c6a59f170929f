// Package config loads runtime settings from the environment and an
// optional preferences file, and defines the validated Jamf client
// identity passed to the token manager and API client.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings holds all environment-based configuration for patcher.
type Settings struct {
	// Environment controls log format ("production" enables JSON logs).
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// ConfigDir overrides the default ~/.patcher directory used for the
	// credential store, dataset cache, preferences file, and logs.
	ConfigDir string `env:"PATCHER_CONFIG_DIR"`

	// Credentials supplied via environment take precedence over the
	// credential store. Intended for headless and CI runs where a
	// first-run setup prompt is not possible.
	ClientID     string `env:"PATCHER_CLIENT_ID"`
	ClientSecret string `env:"PATCHER_CLIENT_SECRET"`
	ServerURL    string `env:"PATCHER_URL"`
}

// Preferences are report options persisted in <config dir>/config.yaml.
// Command-line flags override these; they exist so recurring options do
// not have to be retyped every run.
type Preferences struct {
	OutputDir   string `yaml:"output_dir"`
	DateFormat  string `yaml:"date_format"`
	SortKey     string `yaml:"sort"`
	OmitHours   int    `yaml:"omit_hours"`
	Concurrency int    `yaml:"concurrency"`
}

// DefaultPreferences returns the baseline report options.
func DefaultPreferences() Preferences {
	return Preferences{
		DateFormat:  "Jan 02 2006",
		OmitHours:   48,
		Concurrency: 5,
	}
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}

		cfg.ConfigDir = filepath.Join(home, ".patcher")
	}

	return cfg, nil
}

// LoadPreferences reads the preferences file from dir, returning
// defaults when the file does not exist. Unset fields fall back to
// their defaults so a partial file stays valid.
func LoadPreferences(dir string) (Preferences, error) {
	prefs := DefaultPreferences()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return prefs, nil
		}

		return prefs, fmt.Errorf("reading preferences: %w", err)
	}

	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("parsing preferences: %w", err)
	}

	if prefs.DateFormat == "" {
		prefs.DateFormat = DefaultPreferences().DateFormat
	}

	if prefs.OmitHours <= 0 {
		prefs.OmitHours = DefaultPreferences().OmitHours
	}

	if prefs.Concurrency <= 0 {
		prefs.Concurrency = DefaultPreferences().Concurrency
	}

	return prefs, nil
}

// SavePreferences writes the preferences file under dir.
func SavePreferences(dir string, prefs Preferences) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o600); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}

	return nil
}
