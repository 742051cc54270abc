// Package media issues access tokens for the LiveKit-compatible media server
// that carries voice and video calls.
package media

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/Gopher0727/Guildhall/config"
)

var ErrNotConfigured = errors.New("media server credentials are not configured")

// VideoGrant is the room permission block understood by the media server.
type VideoGrant struct {
	Room     string `json:"room,omitempty"`
	RoomJoin bool   `json:"roomJoin,omitempty"`
}

type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenIssuer(cfg *config.LiveKitConfig) *TokenIssuer {
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &TokenIssuer{apiKey: cfg.APIKey, apiSecret: []byte(cfg.APISecret), ttl: ttl, now: time.Now}
}

// Configured reports whether both the key and the secret are set.
func (t *TokenIssuer) Configured() bool {
	return t.apiKey != "" && len(t.apiSecret) > 0
}

// RoomToken lets identity join room.
func (t *TokenIssuer) RoomToken(identity, room string) (string, error) {
	if !t.Configured() {
		return "", ErrNotConfigured
	}
	now := t.now()
	claims := Claims{
		Name:  identity,
		Video: &VideoGrant{Room: room, RoomJoin: true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign media token: %w", err)
	}
	return signed, nil
}
