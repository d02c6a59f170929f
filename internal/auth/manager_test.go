package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/logging"
	"github.com/patcher-cli/patcher/internal/store"
)

// tokenServer serves the OAuth endpoint, counting exchanges and allowing
// the response to be customized per test.
func tokenServer(t *testing.T, calls *atomic.Int64, respond func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/oauth/token", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		calls.Add(1)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func okResponse(expiresIn int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-fresh","expires_in":%d}`, expiresIn)
	}
}

func testManager(t *testing.T, serverURL string, secrets store.Store) *Manager {
	t.Helper()

	cfg, err := config.NewClientConfig("test-id", "test-secret", serverURL)
	require.NoError(t, err)

	return NewManager(cfg, secrets, nil, logging.NewLogger("development"))
}

// --- FetchToken ---

func TestFetchToken_SuccessCachesAndPersists(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	secrets := store.NewMemStore()
	m := testManager(t, srv.URL, secrets)

	tok, err := m.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", tok.Token)
	assert.False(t, tok.IsExpired())

	// Persisted as two entries: value and RFC 3339 expiry.
	v, err := secrets.Get(store.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", v)

	expStr, err := secrets.Get(store.KeyTokenExpiration)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, expStr)
	assert.NoError(t, err)
}

func TestFetchToken_Non200IsTokenFetchError(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.FetchToken(context.Background())

	var tfe *TokenFetchError
	require.ErrorAs(t, err, &tfe)
	assert.Contains(t, tfe.Error(), "401")
}

func TestFetchToken_RejectsNonStringToken(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"access_token":12345,"expires_in":1800}`)
	})
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.FetchToken(context.Background())

	var tfe *TokenFetchError
	require.ErrorAs(t, err, &tfe)
	assert.Contains(t, tfe.Error(), "access_token")
}

func TestFetchToken_RejectsNonPositiveExpiresIn(t *testing.T) {
	for _, expiresIn := range []int{0, -300} {
		var calls atomic.Int64
		srv := tokenServer(t, &calls, okResponse(expiresIn))
		m := testManager(t, srv.URL, store.NewMemStore())

		_, err := m.FetchToken(context.Background())

		var tfe *TokenFetchError
		require.ErrorAs(t, err, &tfe, "expires_in=%d", expiresIn)
	}
}

func TestFetchToken_UnparsableBody(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.FetchToken(context.Background())

	var tfe *TokenFetchError
	require.ErrorAs(t, err, &tfe)
}

func TestFetchToken_StoreWriteFailureIsCredentialError(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))

	ctrl := gomock.NewController(t)
	secrets := NewMockStore(ctrl)
	secrets.EXPECT().Get(store.KeyToken).Return("", store.ErrNotFound)
	secrets.EXPECT().Set(store.KeyToken, "tok-fresh").Return(errors.New("keychain locked"))

	cfg, err := config.NewClientConfig("id", "secret", srv.URL)
	require.NoError(t, err)
	m := NewManager(cfg, secrets, nil, logging.NewLogger("development"))

	_, err = m.FetchToken(context.Background())

	var ce *CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, store.KeyToken, ce.Key)
}

// --- EnsureValidToken ---

func TestEnsureValidToken_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, store.NewMemStore())

	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", tok)
	assert.Equal(t, int64(1), calls.Load())
}

func TestEnsureValidToken_ReusesValidToken(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	_, err = m.EnsureValidToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second call must not refetch")
}

func TestEnsureValidToken_SingleFlightUnderConcurrency(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, store.NewMemStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.EnsureValidToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-fresh", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent callers must share one refresh")
}

func TestEnsureValidToken_LifetimeFloorEnforced(t *testing.T) {
	// A 100-second token survives the expiry check (skew is 60s) but
	// fails the 120-second lifetime floor.
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(100))
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.EnsureValidToken(context.Background())

	var tle *TokenLifetimeError
	require.ErrorAs(t, err, &tle)
	assert.Equal(t, 120, tle.Minimum)
	assert.LessOrEqual(t, tle.Remaining, 100)
}

func TestEnsureValidToken_FetchFailurePropagates(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.EnsureValidToken(context.Background())

	var tfe *TokenFetchError
	require.ErrorAs(t, err, &tfe)
}

// --- persistence across restarts ---

func TestNewManager_LoadsPersistedToken(t *testing.T) {
	secrets := store.NewMemStore()
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, secrets.Set(store.KeyToken, "tok-persisted"))
	require.NoError(t, secrets.Set(store.KeyTokenExpiration, expires.Format(time.RFC3339)))

	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, secrets)

	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-persisted", tok)
	assert.Equal(t, int64(0), calls.Load(), "a valid persisted token needs no refresh")
}

func TestNewManager_IgnoresUnparsableExpiry(t *testing.T) {
	secrets := store.NewMemStore()
	require.NoError(t, secrets.Set(store.KeyToken, "tok-persisted"))
	require.NoError(t, secrets.Set(store.KeyTokenExpiration, "not-a-timestamp"))

	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, secrets)

	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", tok, "unparsable expiry must force a refresh")
	assert.Equal(t, int64(1), calls.Load())
}

// --- Invalidate ---

func TestInvalidate_ForcesRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, okResponse(1800))
	m := testManager(t, srv.URL, store.NewMemStore())

	_, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)

	m.Invalidate()

	_, err = m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}
