// Package claimstoken encodes a claim set as a compact signed token (HS256
// JWT) so it can be attached to a session and read back without trusting
// the storage it passed through.
package claimstoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "portalauthz"

// ErrInvalidToken indicates the token failed signature or claim validation.
var ErrInvalidToken = errors.New("invalid claims token")

type tokenClaims struct {
	Roles           []string          `json:"roles"`
	Capabilities    []string          `json:"caps"`
	Status          string            `json:"status"`
	Version         int64             `json:"ver"`
	RegistryVersion int               `json:"rv"`
	Orgs            map[string]string `json:"orgs,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies claims tokens with one HMAC key.
type Codec struct {
	key []byte
	now func() time.Time
}

// New returns a Codec. The key should come from keys.Derive.
func New(key []byte) (*Codec, error) {
	if len(key) < 32 {
		return nil, errors.New("claimstoken: key must be at least 32 bytes")
	}
	return &Codec{key: append([]byte(nil), key...), now: time.Now}, nil
}

// Encode signs cs. The token has no expiry of its own; freshness is judged by
// the resolver against IssuedAt.
func (c *Codec) Encode(cs models.ClaimSet) (string, error) {
	if strings.TrimSpace(cs.PrincipalID) == "" {
		return "", errors.New("claimstoken: principal id is required")
	}
	issued := cs.IssuedAt
	if issued.IsZero() {
		issued = c.now()
	}
	claims := tokenClaims{
		Roles:           cs.Roles,
		Capabilities:    cs.Capabilities,
		Status:          cs.Status,
		Version:         cs.Version,
		RegistryVersion: cs.RegistryVersion,
		Orgs:            cs.Orgs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  cs.PrincipalID,
			IssuedAt: jwt.NewNumericDate(issued.UTC()),
			ID:       uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign claims token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns the claim set it carries.
func (c *Codec) Decode(token string) (models.ClaimSet, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.ClaimSet{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithIssuedAt(), jwt.WithTimeFunc(c.now))
	if err != nil {
		return models.ClaimSet{}, ErrInvalidToken
	}
	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || tc.Subject == "" || tc.IssuedAt == nil {
		return models.ClaimSet{}, ErrInvalidToken
	}
	return models.ClaimSet{
		PrincipalID:     tc.Subject,
		Roles:           tc.Roles,
		Capabilities:    tc.Capabilities,
		Status:          tc.Status,
		IssuedAt:        tc.IssuedAt.Time.UTC(),
		Version:         tc.Version,
		RegistryVersion: tc.RegistryVersion,
		Orgs:            tc.Orgs,
	}, nil
}
