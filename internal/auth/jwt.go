package auth

import (
	"errors"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the calling service (booking subsystem, back office).
// User authentication is owned elsewhere; this engine only needs a stable
// actor name for the audit trail.
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

func GenerateServiceToken(cfg *config.JWTConfig, service string) (string, error) {
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.Expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    cfg.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

var ErrInvalidToken = errors.New("invalid token")

func ParseServiceToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
