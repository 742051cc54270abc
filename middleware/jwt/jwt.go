package jwt

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrTokenNotYetValid  = errors.New("token not yet valid")
	ErrMissingSubject    = errors.New("token has no subject")
	ErrRefreshTooEarly   = errors.New("token not yet eligible for refresh")
	ErrRefreshWindowOver = errors.New("token expired beyond refresh window")
)

// Claims carries the session identity. Subject is the external identity id;
// Username and Image are copied into the user record on sync.
type Claims struct {
	Username string `json:"username,omitempty"`
	Image    string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret     []byte
	expireDur  time.Duration
	refreshDur time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, expireHours, refreshHours int) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expireDur:  time.Duration(expireHours) * time.Hour,
		refreshDur: time.Duration(refreshHours) * time.Hour,
		now:        time.Now,
	}
}

// GenerateToken issues an HS256 token for subject.
func (tm *TokenManager) GenerateToken(subject, username, image string) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	now := tm.now()

	claims := Claims{
		Username: username,
		Image:    image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expireDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return tm.secret, nil
}

// ParseToken verifies signature and time claims and requires a subject.
func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc, jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// RefreshToken reissues a token whose expiry is within refreshDur of now,
// on either side.
func (tm *TokenManager) RefreshToken(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}

	now := tm.now()
	expiry := claims.ExpiresAt.Time
	if now.After(expiry) {
		if now.Sub(expiry) > tm.refreshDur {
			return "", ErrRefreshWindowOver
		}
	} else if expiry.Sub(now) > tm.refreshDur {
		return "", ErrRefreshTooEarly
	}
	return tm.GenerateToken(claims.Subject, claims.Username, claims.Image)
}
