// Package auth issues and verifies the short-lived tokens that gate
// the media stream WebSocket. The webhook mints one per call; the
// stream endpoint refuses upgrades without a valid token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid stream token")
	ErrTokenExpired = errors.New("auth: stream token expired")
)

// StreamClaims binds a stream token to a single call.
type StreamClaims struct {
	CallSID string `json:"call_sid"`
	jwt.RegisteredClaims
}

// IssueStreamToken mints a token authorizing one media stream for callSID.
func IssueStreamToken(secret, callSID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: stream token secret not configured")
	}
	if callSID == "" {
		return "", errors.New("auth: call sid required")
	}

	now := time.Now()
	claims := StreamClaims{
		CallSID: callSID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "voice-bridge",
			Subject:   callSID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign stream token: %w", err)
	}
	return signed, nil
}

// VerifyStreamToken validates the token and returns the call SID it
// authorizes.
func VerifyStreamToken(secret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &StreamClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*StreamClaims)
	if !ok || !token.Valid || claims.CallSID == "" {
		return "", ErrInvalidToken
	}
	return claims.CallSID, nil
}
