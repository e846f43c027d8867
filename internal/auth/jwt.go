package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	AdminID string           `json:"admin_id"`
	Role    models.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

// IsOwner reports whether the token belongs to an owner account.
func (c *Claims) IsOwner() bool {
	return c.Role == models.RoleOwner
}

// GenerateJWT creates a new JWT for a given admin.
func GenerateJWT(adminID utils.SixID, role models.AdminRole, secretKey string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expirationTime := now.Add(ttl)
	claims := &Claims{
		AdminID: adminID.String(),
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   adminID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, expirationTime, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}
	return claims, nil
}
