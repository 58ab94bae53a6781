/*
Package token implements the optional signed handshake token for WebSocket connections.

By default the server trusts the identity fields supplied by the caller at connect
time. When a handshake secret is configured, the caller must instead present a token
signed by the dashboard backend; this package generates and validates those tokens.
*/
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// HandshakeExpiration defines the validity window for handshake tokens.
	HandshakeExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "GymPulse-Server"
)

// Identity defines the claims carried by a signed handshake token. It mirrors the
// plain handshake metadata: a stable user identifier, display strings, and a role.
type Identity struct {
	jwt.StandardClaims

	// UserID is the stable identifier of the principal.
	UserID string `json:"userId"`

	// Username is the account name of the principal.
	Username string `json:"username"`

	// Role is the principal's role ("admin" or "user").
	Role string `json:"role"`

	// DisplayName is the name shown to other users.
	DisplayName string `json:"displayName"`
}

// Generate creates and signs a new handshake token string for the given Identity.
func Generate(identity *Identity, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	identity.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, identity)

	return tok.SignedString([]byte(secretKey))
}

// Parse parses and validates the handshake token string using the provided secretKey.
func Parse(tokenString string, secretKey string) (*Identity, error) {
	claims := &Identity{}

	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !tok.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}
