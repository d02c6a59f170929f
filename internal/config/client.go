package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/patcher-cli/patcher/internal/store"
)

// DefaultMaxConcurrency is the ceiling on simultaneous API requests.
// Jamf documents degraded server behavior above five parallel
// connections, so this is a correctness constraint rather than a
// tuning default.
const DefaultMaxConcurrency = 5

// ClientConfig is the Jamf API identity: credentials, normalized server
// URL, and the request-concurrency ceiling. Constructed once per run;
// only MaxConcurrency has a setter.
type ClientConfig struct {
	ClientID       string
	ClientSecret   string
	ServerURL      string
	MaxConcurrency int
}

// NormalizeServerURL validates and canonicalizes a Jamf server URL:
// scheme defaults to https, the trailing slash is stripped, and a host
// must be present.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("server URL cannot be empty")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing server URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("server URL %q has unsupported scheme %q", raw, u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", raw)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// NewClientConfig builds a validated ClientConfig with the default
// concurrency ceiling.
func NewClientConfig(clientID, clientSecret, serverURL string) (*ClientConfig, error) {
	normalized, err := NormalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		ServerURL:      normalized,
		MaxConcurrency: DefaultMaxConcurrency,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants documented on ClientConfig.
func (c *ClientConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}

	if c.ClientSecret == "" {
		return fmt.Errorf("client secret cannot be empty")
	}

	if _, err := NormalizeServerURL(c.ServerURL); err != nil {
		return err
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", c.MaxConcurrency)
	}

	return nil
}

// SetMaxConcurrency replaces the concurrency ceiling. Values below 1
// are rejected.
func (c *ClientConfig) SetMaxConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", n)
	}

	c.MaxConcurrency = n

	return nil
}

// LoadClientConfig builds the API identity from the credential store,
// with environment-supplied values from Settings taking precedence.
func LoadClientConfig(s store.Store, settings *Settings) (*ClientConfig, error) {
	clientID, err := fromEnvOrStore(settings.ClientID, s, store.KeyClientID)
	if err != nil {
		return nil, err
	}

	clientSecret, err := fromEnvOrStore(settings.ClientSecret, s, store.KeyClientSecret)
	if err != nil {
		return nil, err
	}

	serverURL, err := fromEnvOrStore(settings.ServerURL, s, store.KeyURL)
	if err != nil {
		return nil, err
	}

	return NewClientConfig(clientID, clientSecret, serverURL)
}

func fromEnvOrStore(envValue string, s store.Store, key string) (string, error) {
	if envValue != "" {
		return envValue, nil
	}

	v, err := s.Get(key)
	if err != nil {
		return "", fmt.Errorf("credential %s unavailable (run setup first): %w", key, err)
	}

	return v, nil
}
