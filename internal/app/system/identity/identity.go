// Package identity is the session-backed identity provider: it attaches
// signed claim sets to a principal's open sessions and revokes them.
package identity

import (
	"context"
	"errors"

	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/claimstoken"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// SessionStore is the subset of store/sessions the provider needs.
type SessionStore interface {
	AttachClaims(ctx context.Context, principalID, token string, version int64) (int64, error)
	LatestClaims(ctx context.Context, principalID string) (string, error)
	RevokeAll(ctx context.Context, principalID string) (int64, error)
}

// Provider implements authz.IdentityProvider.
type Provider struct {
	sessions SessionStore
	codec    *claimstoken.Codec
	log      *zap.Logger
}

var _ authz.IdentityProvider = (*Provider)(nil)

// New wires a Provider.
func New(store SessionStore, codec *claimstoken.Codec, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{sessions: store, codec: codec, log: log}
}

// AttachClaims signs cs and stores it on every open session of principalID.
// Sessions already carrying claims from a newer principal version keep them,
// so a delayed publish of an old projection cannot overwrite a fresh one.
func (p *Provider) AttachClaims(ctx context.Context, principalID string, cs models.ClaimSet) error {
	tok, err := p.codec.Encode(cs)
	if err != nil {
		return err
	}
	n, err := p.sessions.AttachClaims(ctx, principalID, tok, cs.Version)
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNoSession
	}
	return nil
}

// AttachedClaims returns the newest verified claim set on the principal's
// sessions. A token that fails verification is reported as missing.
func (p *Provider) AttachedClaims(ctx context.Context, principalID string) (models.ClaimSet, error) {
	tok, err := p.sessions.LatestClaims(ctx, principalID)
	if errors.Is(err, sessions.ErrNotFound) {
		return models.ClaimSet{}, authz.ErrNoClaims
	}
	if err != nil {
		return models.ClaimSet{}, err
	}
	cs, err := p.codec.Decode(tok)
	if err != nil {
		p.log.Warn("discarding unverifiable claims token",
			zap.String("principal_id", principalID), zap.Error(err))
		return models.ClaimSet{}, authz.ErrNoClaims
	}
	return cs, nil
}

// RevokeSessions closes every open session of principalID.
func (p *Provider) RevokeSessions(ctx context.Context, principalID string) error {
	n, err := p.sessions.RevokeAll(ctx, principalID)
	if err != nil {
		return err
	}
	if n > 0 {
		p.log.Info("sessions revoked",
			zap.String("principal_id", principalID), zap.Int64("count", n))
	}
	return nil
}
