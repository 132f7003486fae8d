package jwt

import (
	"fmt"
	"time"

	"whisper_service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// NewToken issues a session token carrying the account's public identity.
func NewToken(account models.Account, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":       account.ID,
		"username":  account.Username,
		"verified":  account.IsVerified,
		"accepting": account.IsAccepting,
		"exp":       time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseToken validates a session token and returns the identity it carries.
func ParseToken(tokenStr, secret string) (models.Identity, error) {
	const op = "jwt.ParseToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return models.Identity{}, fmt.Errorf("%s: invalid token", op)
	}

	if expFloat, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(expFloat) {
			return models.Identity{}, fmt.Errorf("%s: token expired", op)
		}
	} else {
		return models.Identity{}, fmt.Errorf("%s: missing exp claim", op)
	}

	subFloat, ok := claims["sub"].(float64)
	if !ok {
		return models.Identity{}, fmt.Errorf("%s: missing sub claim", op)
	}

	username, ok := claims["username"].(string)
	if !ok {
		return models.Identity{}, fmt.Errorf("%s: missing username claim", op)
	}

	verified, _ := claims["verified"].(bool)
	accepting, _ := claims["accepting"].(bool)

	return models.Identity{
		ID:          int64(subFloat),
		Username:    username,
		IsVerified:  verified,
		IsAccepting: accepting,
	}, nil
}

// Expiry returns the exp claim of a token without verifying its signature.
// Used to size the blacklist TTL on logout.
func Expiry(tokenStr string) (time.Time, error) {
	const op = "jwt.Expiry"

	claims := jwt.MapClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("%s: missing exp claim", op)
	}

	return time.Unix(int64(expFloat), 0), nil
}
