// Package auth issues and verifies the operator access tokens carried in the
// access_token gRPC metadata.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the operator name.
type Claims struct {
	jwt.RegisteredClaims
	Operator string
}

// GenerateToken signs an HS256 token for operator that expires after
// validityDuration.
func GenerateToken(operator string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Operator: operator,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetOperatorFromToken verifies tokenString and returns the operator it was
// issued to. Expired tokens return common.ErrTokenExpired.
func GetOperatorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", err
	}

	if !token.Valid || claims.Operator == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Operator, nil
}
