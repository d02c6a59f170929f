package jamf

import "fmt"

// APIError is a non-2xx or unparsable upstream response. Detail carries
// whatever error text the body offered, already trimmed for display.
type APIError struct {
	URL        string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API %s returned status %d: %s", e.URL, e.StatusCode, e.Detail)
	}

	return fmt.Sprintf("API %s returned status %d", e.URL, e.StatusCode)
}

// DeviceIDFetchError means the mobile device listing came back empty or
// malformed. An empty fleet is a configuration error in this domain,
// not a valid empty state.
type DeviceIDFetchError struct {
	Reason string
}

func (e *DeviceIDFetchError) Error() string {
	return fmt.Sprintf("fetching mobile device IDs: %s", e.Reason)
}

// DeviceOSFetchError means device OS detail records were empty or
// malformed.
type DeviceOSFetchError struct {
	Reason string
}

func (e *DeviceOSFetchError) Error() string {
	return fmt.Sprintf("fetching device OS versions: %s", e.Reason)
}
