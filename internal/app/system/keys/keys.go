// Package keys derives purpose-bound keys from the single configured
// session secret, so the cookie and claims-token keys never coincide.
package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Purposes passed to Derive.
const (
	CookieHash   = "portalauthz.cookie.hash.v1"
	CookieBlock  = "portalauthz.cookie.block.v1"
	ClaimsSign   = "portalauthz.claims.sign.v1"
	OAuthState   = "portalauthz.oauth.state.v1"
	MinSecretLen = 32
)

// ErrShortSecret is returned when the master secret is empty.
var ErrShortSecret = errors.New("keys: master secret is empty")

// Derive returns size bytes derived from master for purpose using
// HKDF-SHA256.
func Derive(master []byte, purpose string, size int) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrShortSecret
	}
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf derive %s: %w", purpose, err)
	}
	return out, nil
}

// MustDerive is Derive for startup paths where a failure is fatal.
func MustDerive(master []byte, purpose string, size int) []byte {
	k, err := Derive(master, purpose, size)
	if err != nil {
		panic(err)
	}
	return k
}
