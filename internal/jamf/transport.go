// Package jamf speaks to the Jamf Pro REST API: a concurrency-bounded
// HTTP transport underneath a token-gated domain client.
package jamf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// httpTimeout is the per-request timeout when no custom client is
	// provided.
	httpTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads to prevent a misbehaving
	// server from consuming unbounded memory.
	maxResponseBytes = 1024 * 1024

	// maxRedirects matches the default net/http limit.
	maxRedirects = 10
)

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the bearer token cannot leak to
// third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// BoundedClient executes HTTP requests under a hard concurrency ceiling.
// The ceiling applies to everything issued through the client, batched
// or not; batches additionally run group-by-group so peak parallelism is
// bounded strictly, not merely averaged.
type BoundedClient struct {
	httpClient *http.Client

	// mu guards gate replacement. The semaphore is swapped atomically
	// rather than resized in place so a lowered limit can never leave
	// in-flight requests over-admitted against the new gate.
	mu    sync.RWMutex
	limit int
	gate  *semaphore.Weighted
}

// NewBoundedClient creates a client with the given concurrency limit.
// A nil httpClient gets a default with a 30-second timeout and same-host
// redirect policy.
func NewBoundedClient(httpClient *http.Client, limit int) (*BoundedClient, error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be at least 1, got %d", limit)
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &BoundedClient{
		httpClient: httpClient,
		limit:      limit,
		gate:       semaphore.NewWeighted(int64(limit)),
	}, nil
}

// SetConcurrency replaces the concurrency ceiling. Requests already
// admitted under the old gate drain against it; new requests see the
// new limit.
func (c *BoundedClient) SetConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("concurrency limit must be at least 1, got %d", n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.limit = n
	c.gate = semaphore.NewWeighted(int64(n))

	return nil
}

// Limit returns the current concurrency ceiling.
func (c *BoundedClient) Limit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.limit
}

func (c *BoundedClient) currentGate() *semaphore.Weighted {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.gate
}

// FetchJSON performs a GET under the concurrency gate and returns the
// raw JSON body. Non-2xx responses yield an *APIError carrying status
// and body detail; a 2xx body that is not JSON fails distinctly.
func (c *BoundedClient) FetchJSON(ctx context.Context, url string, header http.Header) ([]byte, error) {
	gate := c.currentGate()
	if err := gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}
	defer gate.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(body),
		}
	}

	if len(body) > 0 && !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("could not parse JSON from %s", url)
	}

	return body, nil
}

// errorDetail pulls a human-readable message out of an upstream error
// body. Jamf wraps errors several different ways across API versions.
func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return truncate(string(body), 256)
	}

	for _, path := range []string{"errors.0.description", "error_description", "error", "message", "httpStatus"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			return truncate(v.String(), 256)
		}
	}

	return truncate(string(body), 256)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}

	return s
}

// FetchBatch fetches every URL, at most Limit() at a time, preserving
// input order in the result. Groups of Limit() requests run fully in
// parallel; the next group starts only once the previous one has fully
// resolved. Any single failure fails the batch.
func (c *BoundedClient) FetchBatch(ctx context.Context, urls []string, header http.Header) ([][]byte, error) {
	return c.fetchBatch(ctx, urls, header, false)
}

// FetchBatchSparse is FetchBatch except per-URL 404s become nil entries
// instead of failing the batch. Jamf 404s summaries of deleted policies
// individually; callers decide whether missing entries matter.
func (c *BoundedClient) FetchBatchSparse(ctx context.Context, urls []string, header http.Header) ([][]byte, error) {
	return c.fetchBatch(ctx, urls, header, true)
}

func (c *BoundedClient) fetchBatch(ctx context.Context, urls []string, header http.Header, sparse bool) ([][]byte, error) {
	results := make([][]byte, len(urls))
	groupSize := c.Limit()

	for start := 0; start < len(urls); start += groupSize {
		end := start + groupSize
		if end > len(urls) {
			end = len(urls)
		}

		g, gctx := errgroup.WithContext(ctx)

		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				body, err := c.FetchJSON(gctx, urls[i], header)
				if err != nil {
					var apiErr *APIError
					if sparse && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
						return nil
					}

					return err
				}

				results[i] = body

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}
