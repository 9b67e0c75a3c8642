package auth

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "roomledger"
	secretEnvVariable = "ROOMLEDGER_AUTH_SECRET"
	issuedAtLeeway    = 5 * time.Second

	// RoleAdmin may fund wallets.
	RoleAdmin = "admin"
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	errMissingSecret = errors.New("auth secret is not configured")
)

// Claims carries the caller's roles next to the registered JWT claims.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

var signing struct {
	sync.RWMutex
	key []byte
}

// Configure sets the HS256 key. An empty value falls back to
// ROOMLEDGER_AUTH_SECRET.
func Configure(value string) {
	signing.Lock()
	defer signing.Unlock()
	if value = strings.TrimSpace(value); value == "" {
		signing.key = nil
		return
	}
	signing.key = []byte(value)
}

// ResetSecretForTests forgets the configured key.
func ResetSecretForTests() { Configure("") }

func signingKey() ([]byte, error) {
	signing.RLock()
	key := signing.key
	signing.RUnlock()
	if key != nil {
		return key, nil
	}
	if raw := strings.TrimSpace(os.Getenv(secretEnvVariable)); raw != "" {
		return []byte(raw), nil
	}
	return nil, errMissingSecret
}

// GenerateToken issues a token for userID valid for ttl and returns it with
// its expiry.
func GenerateToken(userID string, roles []string, ttl time.Duration) (string, time.Time, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return "", time.Time{}, errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	key, err := signingKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: normalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseAndValidate checks the signature, issuer and lifetime of a token
// issued by GenerateToken. Every failure is ErrInvalidToken.
func ParseAndValidate(token string) (*Claims, error) {
	if token = strings.TrimSpace(token); token == "" {
		return nil, ErrInvalidToken
	}
	key, err := signingKey()
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(issuedAtLeeway),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	claims.Roles = normalizeRoles(claims.Roles)
	return claims, nil
}

// normalizeRoles lowercases, sorts and deduplicates role names.
func normalizeRoles(roles []string) []string {
	var out []string
	for _, role := range roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			out = append(out, role)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
