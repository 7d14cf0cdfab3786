// auth/token.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningAlg = errors.New("unexpected signing method")
	ErrExpiredToken      = errors.New("session token expired")
	ErrInvalidSignature  = errors.New("session token signature is invalid")
	ErrCorruptedToken    = errors.New("session token is corrupted")
	ErrEmptySecret       = errors.New("session token secret is empty")
)

// Claims 会话令牌中携带的房间身份
type Claims struct {
	PlayerID string `json:"pid"`
	GameCode string `json:"code"`
	IsHost   bool   `json:"host,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the session tokens handed out on
// create/join. The session service stores them in its cookie.
type TokenManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewTokenManager(secretKey string, maxAge time.Duration) (*TokenManager, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}
	return &TokenManager{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}, nil
}

// Generate 签发令牌
func (m *TokenManager) Generate(playerID, gameCode string, isHost bool, now time.Time) (string, error) {
	claims := Claims{
		PlayerID: playerID,
		GameCode: gameCode,
		IsHost:   isHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌并返回其中的身份
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSigningAlg):
			return nil, ErrInvalidSigningAlg
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrCorruptedToken
		default:
			return nil, fmt.Errorf("verify session token: %w", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlayerID == "" || claims.GameCode == "" {
		return nil, ErrCorruptedToken
	}
	return claims, nil
}
