package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CalculateIOSOnLatest ---

func latestFeed() []LatestOS {
	return []LatestOS{
		{OSVersion: "17", ProductVersion: "17.5.1", ReleaseDate: "Apr 10 2026"},
		{OSVersion: "16", ProductVersion: "16.7.8", ReleaseDate: "Mar 05 2026"},
	}
}

func TestCalculateIOSOnLatest_BucketsPerMajorVersion(t *testing.T) {
	devices := []DeviceOS{
		{SerialNumber: "A", OSVersion: "17.5.1"},
		{SerialNumber: "B", OSVersion: "16.7.8"},
		{SerialNumber: "C", OSVersion: "17.5.1"},
	}

	rows := CalculateIOSOnLatest(devices, latestFeed())
	require.Len(t, rows, 2)

	ios17 := rows[0]
	assert.Equal(t, "iOS 17.5.1", ios17.Title)
	assert.Equal(t, 2, ios17.HostsPatched)
	assert.Equal(t, 0, ios17.MissingPatch)
	assert.Equal(t, 100.0, ios17.CompletionPercent)
	assert.Equal(t, "Apr 10 2026", ios17.ReleasedDate)

	ios16 := rows[1]
	assert.Equal(t, "iOS 16.7.8", ios16.Title)
	assert.Equal(t, 1, ios16.HostsPatched)
	assert.Equal(t, 0, ios16.MissingPatch)
	assert.Equal(t, 100.0, ios16.CompletionPercent)
}

func TestCalculateIOSOnLatest_CountsLaggards(t *testing.T) {
	devices := []DeviceOS{
		{OSVersion: "17.5.1"},
		{OSVersion: "17.4.0"},
		{OSVersion: "17.3.1"},
	}

	rows := CalculateIOSOnLatest(devices, latestFeed())
	require.Len(t, rows, 1, "empty 16.x bucket must be omitted")

	assert.Equal(t, 1, rows[0].HostsPatched)
	assert.Equal(t, 2, rows[0].MissingPatch)
	assert.Equal(t, 3, rows[0].TotalHosts)
	assert.Equal(t, 33.33, rows[0].CompletionPercent)
}

func TestCalculateIOSOnLatest_UnknownMajorExcluded(t *testing.T) {
	devices := []DeviceOS{
		{OSVersion: "17.5.1"},
		{OSVersion: "15.0"}, // no feed entry for 15
	}

	rows := CalculateIOSOnLatest(devices, latestFeed())
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].TotalHosts, "unknown major versions belong to no bucket")
}

func TestCalculateIOSOnLatest_NoDevices(t *testing.T) {
	rows := CalculateIOSOnLatest(nil, latestFeed())
	assert.Empty(t, rows, "all buckets empty, no zero-total rows")
}

// --- Sort ---

func sampleTitles() []PatchTitle {
	return []PatchTitle{
		NewPatchTitle("Zoom", "3", "Jan 05 2026", "6.0", 10, 90),
		NewPatchTitle("Firefox", "1", "Mar 20 2026", "138.0", 80, 20),
		NewPatchTitle("Slack", "2", "Feb 10 2026", "4.38", 50, 50),
	}
}

func TestSort_ByTitle(t *testing.T) {
	sorted, err := Sort(sampleTitles(), "title")
	require.NoError(t, err)

	names := []string{sorted[0].Title, sorted[1].Title, sorted[2].Title}
	assert.Equal(t, []string{"Firefox", "Slack", "Zoom"}, names)
}

func TestSort_ByCompletionPercent(t *testing.T) {
	sorted, err := Sort(sampleTitles(), "completion_percent")
	require.NoError(t, err)

	assert.Equal(t, "Zoom", sorted[0].Title)
	assert.Equal(t, "Firefox", sorted[2].Title)
}

func TestSort_KeyNormalization(t *testing.T) {
	// CLI-friendly spellings map onto the same column.
	for _, key := range []string{"Hosts Patched", "hosts patched", "HOSTS_PATCHED"} {
		sorted, err := Sort(sampleTitles(), key)
		require.NoError(t, err, "key %q", key)
		assert.Equal(t, "Zoom", sorted[0].Title)
	}
}

func TestSort_DoesNotMutateInput(t *testing.T) {
	in := sampleTitles()
	_, err := Sort(in, "title")
	require.NoError(t, err)
	assert.Equal(t, "Zoom", in[0].Title)
}

func TestSort_UnknownColumnNamesOffender(t *testing.T) {
	_, err := Sort(sampleTitles(), "nonexistent_column")

	var sortErr *SortError
	require.ErrorAs(t, err, &sortErr)
	assert.Equal(t, "Nonexistent Column", sortErr.Column)
}

func TestSort_UnknownColumnOnEmptyInputStillFails(t *testing.T) {
	_, err := Sort(nil, "nope")

	var sortErr *SortError
	require.ErrorAs(t, err, &sortErr)
}

// --- Omit ---

func TestOmit_DropsRecentKeepsOld(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	titles := []PatchTitle{
		NewPatchTitle("Released 24h ago", "", now.Add(-24*time.Hour).Format(ReleaseDateFormat), "", 1, 1),
		NewPatchTitle("Released 8 days ago", "", now.Add(-8*24*time.Hour).Format(ReleaseDateFormat), "", 1, 1),
	}

	kept, err := Omit(titles, 48*time.Hour, now)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "Released 8 days ago", kept[0].Title)
}

func TestOmit_UnparsableDateIsHardError(t *testing.T) {
	titles := []PatchTitle{
		NewPatchTitle("Bad Date", "", "not a date", "", 1, 1),
	}

	_, err := Omit(titles, 48*time.Hour, time.Now())

	var aggErr *AggregateError
	require.ErrorAs(t, err, &aggErr)
	assert.Contains(t, aggErr.Error(), "not a date")
}

func TestOmit_EmptyInput(t *testing.T) {
	kept, err := Omit(nil, 48*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Empty(t, kept)
}
