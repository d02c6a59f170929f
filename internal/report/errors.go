package report

import "fmt"

// SortError is raised when a sort key does not match any report column.
// Column carries the human-formatted name for the user-facing message.
type SortError struct {
	Column string
}

func (e *SortError) Error() string {
	return fmt.Sprintf("invalid sort column %q", e.Column)
}

// AggregateError covers aggregation and validation failures, such as an
// unparsable release date in the omission filter.
type AggregateError struct {
	Reason string
	Value  string
}

func (e *AggregateError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %q", e.Reason, e.Value)
	}

	return e.Reason
}
