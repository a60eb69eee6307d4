package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "recipe-share"

// ErrTokenExpired is returned by Validate for a well-signed token whose
// exp claim has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies the value stored in the session cookie.
//
// WHAT THE TOKEN CARRIES:
// sub is the user ID and jti the server-side session ID. The signature
// stops a client from forging either; the sessions table is what makes
// logout effective before exp is reached.
type TokenService struct {
	secret []byte
}

// NewTokenService requires a secret of at least 16 characters. HS256 is
// only as strong as its key.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// TokenClaims is what Validate recovers from a token.
type TokenClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for the session that expires at expiresAt.
func (s *TokenService) Generate(userID, sessionID string, expiresAt time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate checks signature, algorithm, issuer and expiry, then returns
// the claims. Only HS256 is accepted, which rules out "alg: none" tokens.
func (s *TokenService) Validate(tokenStr string) (TokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return TokenClaims{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" || c.ID == "" {
		return TokenClaims{}, errors.New("auth: token is missing subject or session id")
	}

	return TokenClaims{
		UserID:    c.Subject,
		SessionID: c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
