// Package auth owns the bearer-token lifecycle: the AccessToken value
// type, the single-flight refresh against the Jamf OAuth endpoint, and
// persistence of tokens to the credential store.
package auth

import "time"

// expirySkew treats tokens as expired slightly before their true expiry
// to tolerate clock drift and in-flight request latency.
const expirySkew = 60 * time.Second

// AccessToken is an immutable bearer token with its absolute UTC expiry.
// Tokens are replaced wholesale on refresh, never mutated.
type AccessToken struct {
	Token   string
	Expires time.Time
}

// NewAccessToken builds a token expiring at now + expiresIn seconds.
func NewAccessToken(token string, expiresIn int, now time.Time) AccessToken {
	return AccessToken{
		Token:   token,
		Expires: now.UTC().Add(time.Duration(expiresIn) * time.Second),
	}
}

// IsExpiredAt reports whether the token is expired at the given instant,
// applying the 60-second skew.
func (t AccessToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.Expires.Add(-expirySkew))
}

// IsExpired reports whether the token is expired now.
func (t AccessToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// SecondsRemainingAt returns the whole seconds until expiry at the given
// instant. Never negative, even for long-expired tokens.
func (t AccessToken) SecondsRemainingAt(now time.Time) int {
	remaining := int(t.Expires.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}

	return remaining
}

// SecondsRemaining returns the whole seconds until expiry, measured now.
func (t AccessToken) SecondsRemaining() int {
	return t.SecondsRemainingAt(time.Now())
}

func (t AccessToken) String() string {
	return t.Token
}
