package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/store"
)

const (
	// minLifetime is the least remaining token lifetime an API call may
	// start with. Jamf administrators can configure arbitrarily short
	// token lifetimes; a request that outlives its token mid-flight must
	// be prevented up front rather than retried.
	minLifetime = 120 * time.Second

	// fetchTimeout bounds the OAuth exchange request.
	fetchTimeout = 30 * time.Second

	// maxTokenResponseBytes caps the token response body read.
	maxTokenResponseBytes = 64 * 1024
)

// Doer executes a single HTTP request. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager guarantees callers observe a token that is present and has
// sufficient remaining lifetime before an API call is attempted. The
// cached token is the one piece of shared mutable state; mu serializes
// the refresh-decision-and-fetch critical section so concurrent callers
// cannot trigger redundant refreshes.
type Manager struct {
	cfg     *config.ClientConfig
	secrets store.Store
	client  Doer
	logger  *slog.Logger

	mu    sync.Mutex
	token AccessToken

	// now is replaceable in tests.
	now func() time.Time
}

// NewManager creates a token manager. A nil client gets a default
// http.Client with a 30-second timeout. Any previously persisted token
// is loaded from the store so restarts reuse unexpired tokens.
func NewManager(cfg *config.ClientConfig, secrets store.Store, client Doer, logger *slog.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	m := &Manager{
		cfg:     cfg,
		secrets: secrets,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
	m.token = m.loadPersisted()

	return m
}

// loadPersisted restores the token cached in the credential store, if
// any. Absent or unparsable entries yield the zero token, which reads
// as expired.
func (m *Manager) loadPersisted() AccessToken {
	value, err := m.secrets.Get(store.KeyToken)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("could not read persisted token", slog.Any("error", err))
		}

		return AccessToken{}
	}

	expStr, err := m.secrets.Get(store.KeyTokenExpiration)
	if err != nil {
		return AccessToken{}
	}

	expires, err := time.Parse(time.RFC3339, expStr)
	if err != nil {
		m.logger.Warn("persisted token expiry unparsable", slog.String("value", expStr))
		return AccessToken{}
	}

	return AccessToken{Token: value, Expires: expires}
}

// Token returns the currently cached token.
func (m *Manager) Token() AccessToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token
}

// EnsureValidToken returns a bearer token that is unexpired and has at
// least the minimum remaining lifetime, refreshing it if needed. It is
// the single serialization point for refreshes: concurrent callers block
// here and observe the token fetched by whichever caller went first.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.token.IsExpiredAt(now) {
		m.logger.Debug("bearer token expired, refreshing")

		tok, err := m.fetchTokenLocked(ctx)
		if err != nil {
			return "", err
		}

		m.token = tok
		now = m.now()
	}

	if remaining := m.token.SecondsRemainingAt(now); remaining < int(minLifetime.Seconds()) {
		return "", &TokenLifetimeError{Remaining: remaining, Minimum: int(minLifetime.Seconds())}
	}

	return m.token.Token, nil
}

// Invalidate discards the cached token so the next EnsureValidToken
// performs a refresh. Used after an authenticated call comes back 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = AccessToken{}
}

// FetchToken performs the client-credentials exchange and persists the
// result. Exported for the setup flow, which runs single-caller and
// outside the EnsureValidToken lock.
func (m *Manager) FetchToken(ctx context.Context) (AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.fetchTokenLocked(ctx)
	if err != nil {
		return AccessToken{}, err
	}

	m.token = tok

	return tok, nil
}

// tokenResponse is the Jamf OAuth token endpoint payload.
type tokenResponse struct {
	AccessToken json.RawMessage `json:"access_token"`
	ExpiresIn   int             `json:"expires_in"`
}

func (m *Manager) fetchTokenLocked(ctx context.Context) (AccessToken, error) {
	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}

	endpoint := m.cfg.ServerURL + "/api/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, &TokenFetchError{Reason: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return AccessToken{}, &TokenFetchError{Reason: fmt.Sprintf("requesting %s", endpoint), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return AccessToken{}, &TokenFetchError{Reason: "reading token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, &TokenFetchError{
			Reason: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return AccessToken{}, &TokenFetchError{Reason: "decoding token response", Err: err}
	}

	// The token must be a JSON string and expires_in positive; anything
	// else is contract drift and reads as fetch failure, not a crash.
	var tokenStr string
	if err := json.Unmarshal(tr.AccessToken, &tokenStr); err != nil || tokenStr == "" {
		return AccessToken{}, &TokenFetchError{Reason: "response carried no usable access_token"}
	}

	if tr.ExpiresIn <= 0 {
		return AccessToken{}, &TokenFetchError{Reason: fmt.Sprintf("non-positive expires_in %d", tr.ExpiresIn)}
	}

	tok := NewAccessToken(tokenStr, tr.ExpiresIn, m.now())

	if err := m.persist(tok); err != nil {
		return AccessToken{}, err
	}

	m.logger.Info("bearer token refreshed", slog.Int("expires_in", tr.ExpiresIn))

	return tok, nil
}

// persist writes the token value and its RFC 3339 expiry as two separate
// store entries. The store offers no cross-key transactionality; a
// failure between writes is repaired by the next refresh.
func (m *Manager) persist(tok AccessToken) error {
	if err := m.secrets.Set(store.KeyToken, tok.Token); err != nil {
		return &CredentialError{Key: store.KeyToken, Err: err}
	}

	if err := m.secrets.Set(store.KeyTokenExpiration, tok.Expires.Format(time.RFC3339)); err != nil {
		return &CredentialError{Key: store.KeyTokenExpiration, Err: err}
	}

	return nil
}
