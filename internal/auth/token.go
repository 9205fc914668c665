// Package auth issues and verifies the JWT access/refresh token pairs used
// by the HTTP API.
package auth

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for expired, malformed, or mistyped tokens.
var ErrInvalidToken = errors.New("invalid token")

// Token types embedded in claims so an access token can never be replayed as
// a refresh token or vice versa.
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	UserID    int64  `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is an access/refresh token pair issued together.
type Pair struct {
	Access  string
	Refresh string
}

// TokenManager signs and verifies token pairs with a shared HMAC secret.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a TokenManager signing with secret.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssuePair returns a fresh access/refresh pair for the user.
func (m *TokenManager) IssuePair(userID int64) (*Pair, error) {
	access, err := m.sign(userID, typeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(userID, typeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

// VerifyAccess validates an access token and returns the user ID it carries.
func (m *TokenManager) VerifyAccess(token string) (int64, error) {
	return m.verify(token, typeAccess)
}

// VerifyRefresh validates a refresh token and returns the user ID it carries.
func (m *TokenManager) VerifyRefresh(token string) (int64, error) {
	return m.verify(token, typeRefresh)
}

func (m *TokenManager) sign(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

func (m *TokenManager) verify(token, wantType string) (int64, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
