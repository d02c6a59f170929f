// Package store persists API credentials and cached report datasets.
//
// The Store interface is the only surface the rest of the program depends
// on; the shipped backend is an encrypted bbolt database under the user
// config directory, with an in-memory implementation for tests.
package store

import "errors"

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("secret not found")

// Well-known credential keys. All live under a single service namespace.
const (
	KeyToken           = "TOKEN"
	KeyTokenExpiration = "TOKEN_EXPIRATION"
	KeyClientID        = "CLIENT_ID"
	KeyClientSecret    = "CLIENT_SECRET"
	KeyURL             = "URL"
)

// Store provides named string secrets. Implementations must be safe for
// concurrent use. No transactionality is assumed across multiple keys.
type Store interface {
	// Get returns the value for key, or ErrNotFound when absent.
	Get(key string) (string, error)

	// Set writes the value for key, overwriting any existing value.
	Set(key, value string) error

	// Delete removes key and reports whether a value was present.
	Delete(key string) (bool, error)
}
