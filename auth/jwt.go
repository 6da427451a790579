// Package auth validates the HS256-signed bearer tokens issued for the
// query and coding endpoints. Trimmed from the teacher's Keycloak-aware
// RSA/JWKS validator to a single-issuer HMAC validator: this service has
// no multi-realm identity provider to federate with, so the JWKS fetch,
// RSA key parsing, and dynamic issuer-derived endpoint resolution are
// dropped entirely rather than kept unused.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the token claims this service trusts.
type Claims struct {
	Sub   string   `json:"sub"`
	Iss   string   `json:"iss"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTValidator validates HS256 tokens against a single shared secret.
type JWTValidator struct {
	secret         []byte
	allowedIssuers []string
}

// NewJWTValidator creates a new JWT validator.
func NewJWTValidator(secret string, allowedIssuers []string) *JWTValidator {
	return &JWTValidator{
		secret:         []byte(secret),
		allowedIssuers: allowedIssuers,
	}
}

// ValidateToken validates a JWT token string and returns its claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && time.Now().After(exp.Time) {
		return nil, errors.New("token has expired")
	}

	if len(v.allowedIssuers) > 0 {
		validIssuer := false
		for _, allowed := range v.allowedIssuers {
			if claims.Iss == allowed {
				validIssuer = true
				break
			}
		}
		if !validIssuer {
			return nil, fmt.Errorf("invalid issuer: %s", claims.Iss)
		}
	}

	return claims, nil
}

// ExtractUserContext extracts the user ID carried by the token's subject.
func (v *JWTValidator) ExtractUserContext(claims *Claims) (userID string) {
	return claims.Sub
}
