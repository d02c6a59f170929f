package report

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CalculateIOSOnLatest buckets devices by OS major version and counts,
// per bucket, how many run exactly the latest known full version. One
// row is emitted per bucket with any devices present; devices whose
// major version has no feed entry are ignored.
func CalculateIOSOnLatest(devices []DeviceOS, latest []LatestOS) []PatchTitle {
	byMajor := make(map[string]LatestOS, len(latest))
	majors := make([]string, 0, len(latest))

	for _, lv := range latest {
		if _, seen := byMajor[lv.OSVersion]; !seen {
			majors = append(majors, lv.OSVersion)
		}

		byMajor[lv.OSVersion] = lv
	}

	type bucket struct {
		onLatest int
		total    int
	}
	counts := make(map[string]*bucket, len(byMajor))
	for major := range byMajor {
		counts[major] = &bucket{}
	}

	for _, device := range devices {
		major, _, _ := strings.Cut(device.OSVersion, ".")

		b, known := counts[major]
		if !known {
			continue
		}

		b.total++
		if device.OSVersion == byMajor[major].ProductVersion {
			b.onLatest++
		}
	}

	titles := make([]PatchTitle, 0, len(majors))
	for _, major := range majors {
		b := counts[major]
		if b.total == 0 {
			continue
		}

		lv := byMajor[major]
		titles = append(titles, NewPatchTitle(
			"iOS "+lv.ProductVersion,
			"",
			lv.ReleaseDate,
			lv.ProductVersion,
			b.onLatest,
			b.total-b.onLatest,
		))
	}

	return titles
}

// sortKeys maps normalized column names to comparison functions over
// the PatchTitle schema. Sort keys are validated against this map, not
// against arbitrary attribute access.
var sortKeys = map[string]func(a, b PatchTitle) bool{
	"title":              func(a, b PatchTitle) bool { return a.Title < b.Title },
	"title_id":           func(a, b PatchTitle) bool { return a.TitleID < b.TitleID },
	"released_date":      func(a, b PatchTitle) bool { return a.ReleasedDate < b.ReleasedDate },
	"hosts_patched":      func(a, b PatchTitle) bool { return a.HostsPatched < b.HostsPatched },
	"missing_patch":      func(a, b PatchTitle) bool { return a.MissingPatch < b.MissingPatch },
	"latest_version":     func(a, b PatchTitle) bool { return a.LatestVersion < b.LatestVersion },
	"completion_percent": func(a, b PatchTitle) bool { return a.CompletionPercent < b.CompletionPercent },
	"total_hosts":        func(a, b PatchTitle) bool { return a.TotalHosts < b.TotalHosts },
}

var columnCaser = cases.Title(language.English)

// humanColumn renders a normalized sort key as a report column header,
// e.g. "released_date" -> "Released Date".
func humanColumn(key string) string {
	return columnCaser.String(strings.ReplaceAll(key, "_", " "))
}

// Sort returns the rows ordered ascending by the named column. The key
// is case-insensitive and accepts spaces for underscores. An unknown
// column yields a SortError naming it; the input is never modified.
func Sort(titles []PatchTitle, key string) ([]PatchTitle, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")

	less, ok := sortKeys[normalized]
	if !ok {
		return nil, &SortError{Column: humanColumn(normalized)}
	}

	out := make([]PatchTitle, len(titles))
	copy(out, titles)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	return out, nil
}

// Omit drops rows whose release date falls after now-cutoff, keeping
// only patches old enough for fleets to have had a chance to update. A
// row with an unparsable release date fails the whole operation rather
// than being silently kept or dropped.
func Omit(titles []PatchTitle, cutoff time.Duration, now time.Time) ([]PatchTitle, error) {
	threshold := now.Add(-cutoff)

	kept := make([]PatchTitle, 0, len(titles))
	for _, title := range titles {
		released, err := time.Parse(ReleaseDateFormat, title.ReleasedDate)
		if err != nil {
			return nil, &AggregateError{Reason: "unparsable release date in omission filter", Value: title.ReleasedDate}
		}

		if released.Before(threshold) {
			kept = append(kept, title)
		}
	}

	return kept, nil
}
