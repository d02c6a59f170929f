// Package report turns raw Jamf patch summaries and device OS records
// into normalized report rows, applies sorting and omission policy, and
// orchestrates export. Aggregation here is pure computation; all I/O
// happens in the API client and the exporters.
package report

import (
	"fmt"
	"math"
	"time"
)

// ReleaseDateFormat is how release dates are rendered in report rows.
// The omission filter parses this same layout back.
const ReleaseDateFormat = "Jan 02 2006"

// releaseDateLayouts are the upstream timestamp shapes accepted when
// normalizing a release date. Jamf emits ISO 8601 with and without a
// colon in the offset depending on API version.
var releaseDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
}

// PatchTitle is one normalized report row: compliance status for a
// software title or an OS-version bucket. Derived fields are computed at
// construction and the value is immutable afterwards.
type PatchTitle struct {
	Title             string   `json:"title"`
	TitleID           string   `json:"title_id,omitempty"`
	ReleasedDate      string   `json:"released_date"`
	HostsPatched      int      `json:"hosts_patched"`
	MissingPatch      int      `json:"missing_patch"`
	LatestVersion     string   `json:"latest_version,omitempty"`
	CompletionPercent float64  `json:"completion_percent"`
	TotalHosts        int      `json:"total_hosts"`
	InstallLabels     []string `json:"install_labels,omitempty"`
}

// NewPatchTitle builds a row and computes the derived fields:
// TotalHosts is always patched+missing, and CompletionPercent is the
// patched share rounded to two decimals, defined as 0.0 for an empty
// fleet rather than an error.
func NewPatchTitle(title, titleID, releasedDate, latestVersion string, hostsPatched, missingPatch int) PatchTitle {
	total := hostsPatched + missingPatch

	return PatchTitle{
		Title:             title,
		TitleID:           titleID,
		ReleasedDate:      releasedDate,
		HostsPatched:      hostsPatched,
		MissingPatch:      missingPatch,
		LatestVersion:     latestVersion,
		CompletionPercent: completionPercent(hostsPatched, total),
		TotalHosts:        total,
	}
}

func completionPercent(patched, total int) float64 {
	if total <= 0 {
		return 0.0
	}

	return math.Round(float64(patched)/float64(total)*100*100) / 100
}

// DeviceOS is one mobile device's serial number and OS version.
type DeviceOS struct {
	SerialNumber string
	OSVersion    string
}

// LatestOS is one entry of the external OS-version feed: the latest full
// version known for a major OS release.
type LatestOS struct {
	OSVersion      string // major version, e.g. "17"
	ProductVersion string // full version, e.g. "17.5.1"
	ReleaseDate    string // already normalized to ReleaseDateFormat
}

// FormatReleaseDate normalizes an upstream ISO 8601 timestamp to the
// report's display format.
func FormatReleaseDate(raw string) (string, error) {
	for _, layout := range releaseDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format(ReleaseDateFormat), nil
		}
	}

	return "", fmt.Errorf("unrecognized release date %q", raw)
}
