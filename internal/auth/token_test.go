package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var refNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// --- NewAccessToken ---

func TestNewAccessToken_ExpiryFromExpiresIn(t *testing.T) {
	tok := NewAccessToken("abc", 1800, refNow)
	assert.Equal(t, "abc", tok.Token)
	assert.Equal(t, refNow.Add(30*time.Minute), tok.Expires)
}

// --- IsExpiredAt ---

func TestIsExpiredAt_FreshTokenNotExpired(t *testing.T) {
	tok := NewAccessToken("abc", 1800, refNow)
	assert.False(t, tok.IsExpiredAt(refNow))
}

func TestIsExpiredAt_SkewAppliesBeforeTrueExpiry(t *testing.T) {
	tok := NewAccessToken("abc", 1800, refNow)

	// 61 seconds before true expiry: still valid.
	assert.False(t, tok.IsExpiredAt(tok.Expires.Add(-61*time.Second)))

	// Exactly 60 seconds before true expiry: expired.
	assert.True(t, tok.IsExpiredAt(tok.Expires.Add(-60*time.Second)))

	// Past true expiry: expired.
	assert.True(t, tok.IsExpiredAt(tok.Expires.Add(time.Second)))
}

func TestIsExpiredAt_ZeroTokenAlwaysExpired(t *testing.T) {
	var tok AccessToken
	assert.True(t, tok.IsExpiredAt(refNow))
}

func TestIsExpiredAt_ShortLivedTokenExpiredImmediately(t *testing.T) {
	// A 59-second token is born inside the skew window.
	tok := NewAccessToken("abc", 59, refNow)
	assert.True(t, tok.IsExpiredAt(refNow))
}

// --- SecondsRemainingAt ---

func TestSecondsRemainingAt_CountsDown(t *testing.T) {
	tok := NewAccessToken("abc", 600, refNow)
	assert.Equal(t, 600, tok.SecondsRemainingAt(refNow))
	assert.Equal(t, 300, tok.SecondsRemainingAt(refNow.Add(5*time.Minute)))
}

func TestSecondsRemainingAt_NeverNegative(t *testing.T) {
	tok := NewAccessToken("abc", 600, refNow)
	assert.Equal(t, 0, tok.SecondsRemainingAt(refNow.Add(time.Hour)))

	var zero AccessToken
	assert.Equal(t, 0, zero.SecondsRemainingAt(refNow))
}

func TestString_ReturnsTokenValue(t *testing.T) {
	tok := NewAccessToken("bearer-value", 600, refNow)
	assert.Equal(t, "bearer-value", tok.String())
}
