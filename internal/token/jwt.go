// Package token issues signed access tokens and opaque refresh tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"launcher-core/internal/launcher"
)

const (
	typeAccess      = "access"
	refreshTokenLen = 32
	minSecretLen    = 16
)

// Claims are the access token claims. The subject is the user UUID.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// JWT implements launcher.TokenIssuer with HS256 access tokens.
type JWT struct {
	secret []byte
	issuer string
}

var _ launcher.TokenIssuer = (*JWT)(nil)

// NewJWT creates an issuer signing with secret.
func NewJWT(secret, issuer string) (*JWT, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLen)
	}
	return &JWT{secret: []byte(secret), issuer: issuer}, nil
}

// IssueAccessToken signs a token for subject. Every token carries a fresh
// jti, so two tokens issued in the same second still differ.
func (j *JWT) IssueAccessToken(subject string, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: typeAccess,
	})

	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates an access token at now and returns its subject.
// Any failure wraps launcher.ErrTokenInvalid.
func (j *JWT) ParseAccessToken(tokenString string, now time.Time) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithIssuer(j.issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %w", launcher.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", launcher.ErrTokenInvalid
	}
	if claims.TokenType != typeAccess {
		return "", fmt.Errorf("%w: token type %q", launcher.ErrTokenInvalid, claims.TokenType)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", launcher.ErrTokenInvalid)
	}
	return claims.Subject, nil
}

// NewRefreshToken returns a random refresh token and the hash to persist.
func (j *JWT) NewRefreshToken() (string, []byte, error) {
	buf := make([]byte, refreshTokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generating refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, j.HashRefreshToken(token), nil
}

// HashRefreshToken returns the SHA-256 of token.
func (j *JWT) HashRefreshToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}
