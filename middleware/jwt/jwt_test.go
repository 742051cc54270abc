package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateAndParse(t *testing.T) {
	tm := NewTokenManager("test-secret", 24, 168)

	token, err := tm.GenerateToken("ext-123", "alice", "https://img/alice.png")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ext-123", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "https://img/alice.png", claims.Image)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	tm := NewTokenManager("test-secret", 24, 168)
	_, err := tm.GenerateToken("", "alice", "")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestParseToken_Rejects(t *testing.T) {
	tm := NewTokenManager("test-secret", 24, 168)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not.a.valid.token"},
		{"random", "randomstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", 24, 168)
		token, err := other.GenerateToken("ext-1", "bob", "")
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no subject", func(t *testing.T) {
		raw := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
			Username: "ghost",
			RegisteredClaims: jwtlib.RegisteredClaims{
				ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		token, err := raw.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("none algorithm", func(t *testing.T) {
		raw := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{
			RegisteredClaims: jwtlib.RegisteredClaims{Subject: "ext-1"},
		})
		token, err := raw.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestParseToken_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 1, 168)
	tm.now = fixedClock(issued)

	token, err := tm.GenerateToken("ext-1", "alice", "")
	require.NoError(t, err)

	tm.now = fixedClock(issued.Add(2 * time.Hour))
	_, err = tm.ParseToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshToken(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("near expiry is refreshed", func(t *testing.T) {
		tm := NewTokenManager("test-secret", 2, 1)
		tm.now = fixedClock(issued)
		token, err := tm.GenerateToken("ext-1", "alice", "img")
		require.NoError(t, err)

		tm.now = fixedClock(issued.Add(90 * time.Minute))
		fresh, err := tm.RefreshToken(token)
		require.NoError(t, err)

		claims, err := tm.ParseToken(fresh)
		require.NoError(t, err)
		assert.Equal(t, "ext-1", claims.Subject)
		assert.Equal(t, "img", claims.Image)
		assert.Equal(t, issued.Add(90*time.Minute+2*time.Hour), claims.ExpiresAt.Time.UTC())
	})

	t.Run("expired within window", func(t *testing.T) {
		tm := NewTokenManager("test-secret", 1, 1)
		tm.now = fixedClock(issued)
		token, err := tm.GenerateToken("ext-1", "alice", "")
		require.NoError(t, err)

		tm.now = fixedClock(issued.Add(90 * time.Minute))
		_, err = tm.RefreshToken(token)
		assert.NoError(t, err)
	})

	t.Run("expired beyond window", func(t *testing.T) {
		tm := NewTokenManager("test-secret", 1, 1)
		tm.now = fixedClock(issued)
		token, err := tm.GenerateToken("ext-1", "alice", "")
		require.NoError(t, err)

		tm.now = fixedClock(issued.Add(3 * time.Hour))
		_, err = tm.RefreshToken(token)
		assert.ErrorIs(t, err, ErrRefreshWindowOver)
	})

	t.Run("too early", func(t *testing.T) {
		tm := NewTokenManager("test-secret", 24, 1)
		token, err := tm.GenerateToken("ext-1", "alice", "")
		require.NoError(t, err)
		_, err = tm.RefreshToken(token)
		assert.ErrorIs(t, err, ErrRefreshTooEarly)
	})

	t.Run("garbage", func(t *testing.T) {
		tm := NewTokenManager("test-secret", 24, 1)
		_, err := tm.RefreshToken("invalid.token.string")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
