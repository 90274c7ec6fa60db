// Package authtoken mints the signed tokens returned by mocked auth endpoints.
package authtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "quizmock"
	accessExpiry  = time.Hour
	refreshExpiry = 30 * 24 * time.Hour
)

// Pair is an access/refresh token pair
type Pair struct {
	Access  string
	Refresh string
}

// Issuer signs HS256 tokens for mock users. The tokens are not meant to be trusted by anything real.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer creates an issuer with the given signing secret
func NewIssuer(secret string) *Issuer {
	if secret == "" {
		secret = "quizmock-dev-secret"
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
}

// SetNow replaces the time source used for issuing and validating tokens
func (i *Issuer) SetNow(now func() time.Time) {
	i.now = now
}

// Issue creates a token pair for userID
func (i *Issuer) Issue(userID, email string) (Pair, error) {
	access, err := i.sign(userID, email, "access", accessExpiry)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(userID, email, "refresh", refreshExpiry)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Parse validates a token and returns its claims
func (i *Issuer) Parse(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

func (i *Issuer) sign(userID, email, kind string, expiry time.Duration) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"sub":   userID,
		"email": email,
		"typ":   kind,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}
