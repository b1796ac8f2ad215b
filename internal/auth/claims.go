package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes a token may carry.
const (
	// ScopePublish allows triggering outbound records over the API.
	ScopePublish = "publish"
)

// MinSecretLength is the shortest HMAC secret accepted for signing.
const MinSecretLength = 32

// defaultTTL applies when GenerateToken is given a non-positive TTL.
const defaultTTL = 24 * time.Hour

var (
	// ErrTokenInvalid is returned for tokens that fail signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrScopeMissing is returned when a valid token lacks a required scope.
	ErrScopeMissing = errors.New("token lacks required scope")

	// ErrSecretTooShort is returned when signing with a weak secret.
	ErrSecretTooShort = errors.New("jwt secret too short")
)

// Claims extends JWT standard claims with the operations the bearer may
// perform.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// GenerateToken creates a signed HS256 token for subject.
//
// Parameters:
//   - subject: Who the token identifies (operator or service name)
//   - secret: HMAC secret, at least MinSecretLength bytes
//   - ttl: Token lifetime; zero or less uses 24 hours
//   - scopes: Granted scopes
//
// Returns:
//   - string: The signed token
//   - error: If the secret is too short or signing fails
func GenerateToken(subject, secret string, ttl time.Duration, scopes ...string) (string, error) {
	if len(secret) < MinSecretLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a token, returning its claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// Authorize parses tokenString and checks it grants scope.
func Authorize(tokenString, secret, scope string) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, fmt.Errorf("%w: %s", ErrScopeMissing, scope)
	}
	return claims, nil
}
