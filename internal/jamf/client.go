package jamf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/report"
)

// DefaultSofaFeedURL is the macadmins SOFA feed of latest iOS versions.
// Unauthenticated; not subject to token gating.
const DefaultSofaFeedURL = "https://sofafeed.macadmins.io/v1/ios_data_feed.json"

// TokenSource provides valid bearer tokens and reacts to rejections.
// Satisfied by *auth.Manager.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Invalidate()
}

// Client exposes domain-shaped, token-gated Jamf operations. Every
// authenticated method validates the token immediately before issuing
// its HTTP calls rather than optimistically using a possibly-stale one.
type Client struct {
	cfg     *config.ClientConfig
	tokens  TokenSource
	http    *BoundedClient
	logger  *slog.Logger
	sofaURL string
}

// NewClient wires a domain client over the given token source and
// bounded transport.
func NewClient(cfg *config.ClientConfig, tokens TokenSource, transport *BoundedClient, logger *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		tokens:  tokens,
		http:    transport,
		logger:  logger,
		sofaURL: DefaultSofaFeedURL,
	}
}

func bearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	return h
}

// is401 reports whether err is an upstream 401 rejection.
func is401(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// authedFetch runs fn with a validated bearer token. A 401 response
// triggers exactly one forced refresh and retry; token refresh is the
// only sanctioned automatic retry in the client.
func (c *Client) authedFetch(ctx context.Context, fn func(header http.Header) error) error {
	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return err
	}

	err = fn(bearerHeader(token))
	if err == nil || !is401(err) {
		return err
	}

	c.logger.Warn("request rejected with 401, refreshing token")
	c.tokens.Invalidate()

	token, err = c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return err
	}

	return fn(bearerHeader(token))
}

// policyConfig is one entry of the patch software title configurations
// listing. Only the id is consumed.
type policyConfig struct {
	ID string `json:"id"`
}

// GetPolicies returns the patch software title configuration IDs.
func (c *Client) GetPolicies(ctx context.Context) ([]string, error) {
	url := c.cfg.ServerURL + "/api/v2/patch-software-title-configurations"

	var ids []string
	err := c.authedFetch(ctx, func(header http.Header) error {
		body, err := c.http.FetchJSON(ctx, url, header)
		if err != nil {
			return err
		}

		// The endpoint contract is a list of objects; anything else is
		// shape drift and rejected at this boundary.
		var configs []policyConfig
		if err := json.Unmarshal(body, &configs); err != nil {
			return fmt.Errorf("unexpected response shape from %s: %w", url, err)
		}

		ids = ids[:0]
		for _, cfg := range configs {
			if cfg.ID == "" {
				return fmt.Errorf("unexpected response shape from %s: entry missing id", url)
			}

			ids = append(ids, cfg.ID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("patch policies fetched", slog.Int("count", len(ids)))

	return ids, nil
}

// patchSummary is the per-policy patch summary payload.
type patchSummary struct {
	Title         string `json:"title"`
	ReleaseDate   string `json:"releaseDate"`
	LatestVersion string `json:"latestVersion"`
	UpToDate      int    `json:"upToDate"`
	OutOfDate     int    `json:"outOfDate"`
}

// GetSummaries fetches per-policy patch summaries as one bounded batch
// and converts them to report rows. Entries the server 404ed or left
// null are dropped; an empty result is success, not an error.
func (c *Client) GetSummaries(ctx context.Context, policyIDs []string) ([]report.PatchTitle, error) {
	urls := make([]string, len(policyIDs))
	for i, id := range policyIDs {
		urls[i] = fmt.Sprintf("%s/api/v2/patch-software-title-configurations/%s/patch-summary", c.cfg.ServerURL, id)
	}

	var titles []report.PatchTitle
	err := c.authedFetch(ctx, func(header http.Header) error {
		bodies, err := c.http.FetchBatchSparse(ctx, urls, header)
		if err != nil {
			return err
		}

		titles = titles[:0]
		for i, body := range bodies {
			if len(body) == 0 || string(body) == "null" {
				continue
			}

			var summary patchSummary
			if err := json.Unmarshal(body, &summary); err != nil {
				return fmt.Errorf("unexpected summary shape from %s: %w", urls[i], err)
			}

			if summary.Title == "" {
				continue
			}

			released, err := report.FormatReleaseDate(summary.ReleaseDate)
			if err != nil {
				c.logger.Warn("summary carries unparsable release date",
					slog.String("title", summary.Title),
					slog.String("releaseDate", summary.ReleaseDate),
				)
				released = summary.ReleaseDate
			}

			titles = append(titles, report.NewPatchTitle(
				summary.Title,
				policyIDs[i],
				released,
				summary.LatestVersion,
				summary.UpToDate,
				summary.OutOfDate,
			))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("policy summaries fetched", slog.Int("count", len(titles)))

	return titles, nil
}

// deviceList is the mobile devices listing payload.
type deviceList struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

// GetDeviceIDs returns all mobile device IDs. An empty fleet is a hard
// failure: it means the API client lacks mobile device scope or the
// wrong server is configured, not that zero devices are enrolled.
func (c *Client) GetDeviceIDs(ctx context.Context) ([]int, error) {
	url := c.cfg.ServerURL + "/api/v2/mobile-devices"

	var ids []int
	err := c.authedFetch(ctx, func(header http.Header) error {
		body, err := c.http.FetchJSON(ctx, url, header)
		if err != nil {
			return err
		}

		var list deviceList
		if err := json.Unmarshal(body, &list); err != nil {
			return fmt.Errorf("unexpected response shape from %s: %w", url, err)
		}

		ids = ids[:0]
		for _, device := range list.Results {
			ids = append(ids, device.ID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, &DeviceIDFetchError{Reason: "server returned an empty device set"}
	}

	c.logger.Debug("mobile device IDs fetched", slog.Int("count", len(ids)))

	return ids, nil
}

// deviceDetail is the per-device detail payload.
type deviceDetail struct {
	SerialNumber string `json:"serialNumber"`
	OSVersion    string `json:"osVersion"`
}

// GetDeviceOSVersions fetches serial number and OS version for each
// device as one bounded batch.
func (c *Client) GetDeviceOSVersions(ctx context.Context, deviceIDs []int) ([]report.DeviceOS, error) {
	if len(deviceIDs) == 0 {
		return nil, &DeviceOSFetchError{Reason: "no device IDs provided"}
	}

	urls := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		urls[i] = fmt.Sprintf("%s/api/v2/mobile-devices/%d/detail", c.cfg.ServerURL, id)
	}

	var devices []report.DeviceOS
	err := c.authedFetch(ctx, func(header http.Header) error {
		bodies, err := c.http.FetchBatch(ctx, urls, header)
		if err != nil {
			return err
		}

		devices = devices[:0]
		for i, body := range bodies {
			var detail deviceDetail
			if err := json.Unmarshal(body, &detail); err != nil {
				return fmt.Errorf("unexpected device detail shape from %s: %w", urls[i], err)
			}

			if detail.OSVersion == "" {
				continue
			}

			devices = append(devices, report.DeviceOS{
				SerialNumber: detail.SerialNumber,
				OSVersion:    detail.OSVersion,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, &DeviceOSFetchError{Reason: "no usable OS records in device details"}
	}

	c.logger.Info("device OS versions fetched", slog.Int("count", len(devices)))

	return devices, nil
}

// GetSofaFeed fetches the external latest-OS-version feed. No token
// gating; the feed is public reference data.
func (c *Client) GetSofaFeed(ctx context.Context) ([]report.LatestOS, error) {
	body, err := c.http.FetchJSON(ctx, c.sofaURL, nil)
	if err != nil {
		return nil, err
	}

	return parseSofaFeed(body)
}
