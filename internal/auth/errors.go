package auth

import "fmt"

// CredentialError wraps a credential store read or write failure.
type CredentialError struct {
	Key string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential store failure for %s: %v", e.Key, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TokenFetchError means the OAuth exchange failed or returned unusable
// data (non-string token, non-positive expires_in).
type TokenFetchError struct {
	Reason string
	Err    error
}

func (e *TokenFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token fetch failed: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("token fetch failed: %s", e.Reason)
}

func (e *TokenFetchError) Unwrap() error { return e.Err }

// TokenLifetimeError means a token is present but its remaining lifetime
// is below the minimum an API call is allowed to start with. Raising the
// token lifetime is a server-side setting, so this cannot be retried.
type TokenLifetimeError struct {
	Remaining int
	Minimum   int
}

func (e *TokenLifetimeError) Error() string {
	return fmt.Sprintf("token lifetime too short: %ds remaining, need at least %ds; increase the API client's token lifetime in Jamf", e.Remaining, e.Minimum)
}
