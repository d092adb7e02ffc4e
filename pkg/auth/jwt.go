// Package auth issues and validates the bearer tokens of the admin API.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shashiranjanraj/filebot/config"
)

// RoleAdmin is the only role the admin API accepts.
const RoleAdmin = "admin"

// Claims holds the typed JWT payload. Subject carries the Telegram user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TelegramID returns the numeric subject.
func (c *Claims) TelegramID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

func secret() []byte {
	return []byte(config.JWTSecret())
}

// GenerateToken creates a signed HS256 token for telegramID valid for ttl.
func GenerateToken(telegramID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(telegramID, 10),
			Issuer:    config.AppName(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// ValidateToken parses and validates a token string.
func ValidateToken(t string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(t, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if _, err := claims.TelegramID(); err != nil {
		return nil, errors.Join(jwt.ErrTokenInvalidSubject, err)
	}

	return claims, nil
}
