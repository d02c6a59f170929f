package jamf

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/patcher-cli/patcher/internal/report"
)

// parseSofaFeed extracts per-major latest versions from the SOFA feed.
// The feed is a large loosely-versioned document, so fields are pulled
// by path rather than unmarshalled wholesale; entries missing a major
// version or a product version are skipped.
func parseSofaFeed(body []byte) ([]report.LatestOS, error) {
	versions := gjson.GetBytes(body, "OSVersions")
	if !versions.IsArray() {
		return nil, fmt.Errorf("SOFA feed missing OSVersions array")
	}

	var latest []report.LatestOS

	versions.ForEach(func(_, entry gjson.Result) bool {
		major := entry.Get("OSVersion").String()
		product := entry.Get("Latest.ProductVersion").String()
		if major == "" || product == "" {
			return true
		}

		released := entry.Get("Latest.ReleaseDate").String()
		if formatted, err := report.FormatReleaseDate(released); err == nil {
			released = formatted
		}

		latest = append(latest, report.LatestOS{
			OSVersion:      major,
			ProductVersion: product,
			ReleaseDate:    released,
		})

		return true
	})

	if len(latest) == 0 {
		return nil, fmt.Errorf("SOFA feed contained no usable OS versions")
	}

	return latest, nil
}
