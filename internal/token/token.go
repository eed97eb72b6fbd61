// Package token issues and verifies the bearer tokens that bind a caller to
// a user's log. Tokens are RS256 JWTs whose audience is the user name and
// whose issuer is the server identity. Nothing is stored server-side.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoCredentials means no Authorization header, or an empty token.
	ErrNoCredentials = errors.New("missing bearer token")
	// ErrUnsupportedScheme means an Authorization header with a scheme
	// other than Bearer.
	ErrUnsupportedScheme = errors.New("authorization scheme must be Bearer")
)

const bearerPrefix = "bearer "

// Service signs and checks tokens with one key pair and issuer.
type Service struct {
	keys   *KeyPair
	issuer string
	now    func() time.Time
}

// NewService returns a Service issuing tokens as issuer.
func NewService(keys *KeyPair, issuer string) *Service {
	return &Service{keys: keys, issuer: issuer, now: time.Now}
}

// Issue returns a signed token authorizing user.
func (s *Service) Issue(user string) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   s.issuer,
		Audience: jwt.ClaimStrings{user},
		IssuedAt: jwt.NewNumericDate(s.now()),
		ID:       uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.keys.private)
	if err != nil {
		return "", fmt.Errorf("signing token for %q: %w", user, err)
	}
	return signed, nil
}

// Verify reports whether tok is a token this server issued for exactly
// user. Any decoding, algorithm, signature or claim problem yields false.
func (s *Service) Verify(tok, user string) bool {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims,
		func(*jwt.Token) (any, error) { return s.keys.public, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return len(claims.Audience) == 1 && claims.Audience[0] == user
}

// PublicKey returns the PEM-encoded verification key.
func (s *Service) PublicKey() []byte {
	return s.keys.PublicPEM()
}

// ExtractBearer returns the token from an Authorization header value. The
// scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerPrefix)) {
		return "", ErrNoCredentials
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrUnsupportedScheme
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		return "", ErrNoCredentials
	}
	return tok, nil
}
