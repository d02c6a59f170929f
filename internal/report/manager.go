package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// APIClient is the slice of the Jamf client the report pipeline needs.
type APIClient interface {
	GetPolicies(ctx context.Context) ([]string, error)
	GetSummaries(ctx context.Context, policyIDs []string) ([]PatchTitle, error)
	GetDeviceIDs(ctx context.Context) ([]int, error)
	GetDeviceOSVersions(ctx context.Context, deviceIDs []int) ([]DeviceOS, error)
	GetSofaFeed(ctx context.Context) ([]LatestOS, error)
}

// DatasetCache persists serialized report runs. Satisfied by
// *store.BoltStore.
type DatasetCache interface {
	SaveDataset(at time.Time, data []byte) error
	LatestDataset() ([]byte, error)
}

// Options selects the optional stages of a report run.
type Options struct {
	// OutputDir receives the Patch-Reports directory.
	OutputDir string

	// SortKey orders rows by the named column when non-empty.
	SortKey string

	// Omit drops rows released within OmitWindow of now.
	Omit       bool
	OmitWindow time.Duration

	// IOS appends per-OS-version rows for the mobile device fleet.
	IOS bool
}

// DefaultOmitWindow matches the product behavior of skipping patches
// released in the last two days.
const DefaultOmitWindow = 48 * time.Hour

// Manager sequences API fetches through aggregation into the exporters.
// A failure in any fetch stage aborts the run; no partial report is
// written.
type Manager struct {
	api       APIClient
	exporters []Exporter
	cache     DatasetCache
	logger    *slog.Logger

	// Progress, when set, receives a short description of each stage as
	// it starts. The CLI points this at its spinner.
	Progress func(stage string)

	now func() time.Time
}

// NewManager creates a report manager. cache may be nil to skip dataset
// caching.
func NewManager(api APIClient, exporters []Exporter, cache DatasetCache, logger *slog.Logger) *Manager {
	return &Manager{
		api:       api,
		exporters: exporters,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

func (m *Manager) progress(stage string) {
	if m.Progress != nil {
		m.Progress(stage)
	}
}

// ProcessReports runs the full pipeline and returns the written report
// paths.
func (m *Manager) ProcessReports(ctx context.Context, opts Options) ([]string, error) {
	m.progress("Fetching patch policies")

	policyIDs, err := m.api.GetPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching patch policies: %w", err)
	}

	m.logger.Info("patch policies fetched", slog.Int("count", len(policyIDs)))
	m.progress("Fetching patch summaries")

	titles, err := m.api.GetSummaries(ctx, policyIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching patch summaries: %w", err)
	}

	m.logger.Info("patch summaries fetched", slog.Int("count", len(titles)))

	var iosTitles []PatchTitle
	if opts.IOS {
		iosTitles, err = m.iosTitles(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Omission and sorting apply to the software-title rows only; the
	// iOS rollup rows ride along at the end of the report untouched.
	staged, err := m.applyStages(titles, opts)
	if err != nil {
		return nil, err
	}

	final := make([]PatchTitle, 0, len(staged)+len(iosTitles))
	final = append(final, staged...)
	final = append(final, iosTitles...)

	paths, err := m.export(final, opts.OutputDir)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		// The cached dataset keeps every fetched row, unfiltered, so a
		// later cached run can apply different options.
		dataset := make([]PatchTitle, 0, len(titles)+len(iosTitles))
		dataset = append(dataset, titles...)
		dataset = append(dataset, iosTitles...)

		if err := m.cacheDataset(dataset); err != nil {
			// Caching is best-effort; the reports are already written.
			m.logger.Warn("could not cache dataset", slog.Any("error", err))
		}
	}

	return paths, nil
}

// ProcessCached regenerates reports from the most recent cached dataset
// without contacting the API. Useful offline or for re-exporting with
// different sort and omission options. The cached rows are not split by
// kind, so omission and sorting apply to every row here, iOS included.
func (m *Manager) ProcessCached(opts Options) ([]string, error) {
	if m.cache == nil {
		return nil, fmt.Errorf("no dataset cache configured")
	}

	m.progress("Loading cached dataset")

	data, err := m.cache.LatestDataset()
	if err != nil {
		return nil, fmt.Errorf("loading cached dataset: %w", err)
	}

	var titles []PatchTitle
	if err := json.Unmarshal(data, &titles); err != nil {
		return nil, fmt.Errorf("decoding cached dataset: %w", err)
	}

	titles, err = m.applyStages(titles, opts)
	if err != nil {
		return nil, err
	}

	return m.export(titles, opts.OutputDir)
}

// applyStages runs the optional omission and sorting stages.
func (m *Manager) applyStages(titles []PatchTitle, opts Options) ([]PatchTitle, error) {
	var err error

	if opts.Omit {
		window := opts.OmitWindow
		if window <= 0 {
			window = DefaultOmitWindow
		}

		before := len(titles)
		titles, err = Omit(titles, window, m.now())
		if err != nil {
			return nil, err
		}

		m.logger.Debug("recent patches omitted", slog.Int("omitted", before-len(titles)))
	}

	if opts.SortKey != "" {
		titles, err = Sort(titles, opts.SortKey)
		if err != nil {
			return nil, err
		}
	}

	return titles, nil
}

func (m *Manager) export(titles []PatchTitle, outputDir string) ([]string, error) {
	m.progress("Writing reports")

	paths := make([]string, 0, len(m.exporters))
	for _, exporter := range m.exporters {
		path, err := exporter.Export(titles, outputDir)
		if err != nil {
			return nil, fmt.Errorf("exporting report: %w", err)
		}

		paths = append(paths, path)
	}

	m.logger.Info("report run complete",
		slog.Int("titles", len(titles)),
		slog.Int("files", len(paths)),
	)

	return paths, nil
}

// iosTitles runs the mobile-device stage: device IDs, per-device OS
// versions, the external latest-version feed, then the on-latest rollup.
func (m *Manager) iosTitles(ctx context.Context) ([]PatchTitle, error) {
	m.progress("Fetching mobile devices")

	deviceIDs, err := m.api.GetDeviceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching device IDs: %w", err)
	}

	versions, err := m.api.GetDeviceOSVersions(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching device OS versions: %w", err)
	}

	latest, err := m.api.GetSofaFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching SOFA feed: %w", err)
	}

	return CalculateIOSOnLatest(versions, latest), nil
}

func (m *Manager) cacheDataset(titles []PatchTitle) error {
	data, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}

	return m.cache.SaveDataset(m.now(), data)
}
