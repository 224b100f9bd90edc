package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	return ts
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		ttl     time.Duration
		wantErr bool
	}{
		{"short secret", "short", time.Hour, true},
		{"exactly 16 chars", "this-is-16-chars", time.Hour, false},
		{"zero lifetime", testSecret, 0, true},
		{"negative lifetime", testSecret, -time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenService(tt.secret, tt.ttl)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "header.payload.signature")
}

func TestGenerate_UsesConfiguredLifetime(t *testing.T) {
	ts, err := NewTokenService(testSecret, 24*time.Hour)
	require.NoError(t, err)

	token, err := ts.Generate("user-123")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &claims{})
	require.NoError(t, err)
	c := parsed.Claims.(*claims)
	assert.Equal(t, "citypolls", c.Issuer)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), c.ExpiresAt.Time, time.Minute)
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-abc")
	require.NoError(t, err)

	got, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-abc", got)
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, err := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)
	require.NoError(t, err)

	good, _ := ts.Generate("user-123")
	expired, _ := ts.GenerateWithDuration("user-123", -time.Second)
	foreign, _ := other.Generate("user-123")
	noSubject, _ := ts.Generate("")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"no subject", noSubject},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestValidate_RejectsForeignIssuer(t *testing.T) {
	ts := newTestTokenService(t)

	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ts.Validate(token)
	assert.Error(t, err)
}
