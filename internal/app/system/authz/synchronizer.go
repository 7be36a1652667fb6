// internal/app/system/authz/synchronizer.go
package authz

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrNoSession is returned by an IdentityProvider when the principal has
	// no active session to attach claims to or read claims from.
	ErrNoSession = errors.New("principal has no active session")
	// ErrNoClaims is returned when a session exists but carries no claim set.
	ErrNoClaims = errors.New("no claim set attached")
)

// IdentityProvider is the external session/credential collaborator.
type IdentityProvider interface {
	// AttachClaims attaches cs to the principal's active session(s).
	AttachClaims(ctx context.Context, principalID string, cs models.ClaimSet) error
	// AttachedClaims returns the claim set currently carried by the
	// principal's session credential.
	AttachedClaims(ctx context.Context, principalID string) (models.ClaimSet, error)
	// RevokeSessions ends every outstanding session of the principal.
	RevokeSessions(ctx context.Context, principalID string) error
}

// Project computes the claim set for p as of at. It does no I/O.
//
// Capabilities are the union of every held role's set plus the permission
// overrides, and are empty unless p's status is approved or active. An
// approved or active principal with no roles holds the baseline role.
func Project(reg *roles.Registry, p models.Principal, at time.Time) models.ClaimSet {
	p.DefaultRoles(reg.Baseline())
	held := normalize.IDs(p.Roles)
	if len(held) == 0 && models.IsEntitledStatus(p.Status) {
		held = []string{reg.Baseline()}
	}

	cs := models.ClaimSet{
		PrincipalID:     p.ID,
		Roles:           held,
		Capabilities:    []string{},
		Status:          p.Status,
		IssuedAt:        at.UTC(),
		Version:         p.Version,
		RegistryVersion: reg.Version(),
	}
	if cs.Roles == nil {
		cs.Roles = []string{}
	}
	if len(p.OrganizationMemberships) > 0 {
		cs.Orgs = make(map[string]string, len(p.OrganizationMemberships))
		for _, m := range p.OrganizationMemberships {
			cs.Orgs[m.OrganizationID] = roles.Normalize(m.Role)
		}
	}
	if !models.IsEntitledStatus(p.Status) {
		return cs
	}

	set := make(map[string]struct{})
	for _, c := range reg.Union(held...) {
		set[c] = struct{}{}
	}
	for _, c := range normalize.IDs(p.PermissionOverrides) {
		if reg.IsKnownCapability(c) {
			set[c] = struct{}{}
		}
	}
	caps := make([]string, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	cs.Capabilities = caps
	return cs
}

// Synchronizer keeps the claim set attached to a principal's sessions
// consistent with the stored Principal.
type Synchronizer struct {
	reg *roles.Registry
	idp IdentityProvider
	log *zap.Logger
	now func() time.Time
}

// NewSynchronizer wires a Synchronizer.
func NewSynchronizer(reg *roles.Registry, idp IdentityProvider, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{reg: reg, idp: idp, log: log, now: time.Now}
}

// Project computes p's claim set as of now.
func (s *Synchronizer) Project(p models.Principal) models.ClaimSet {
	return Project(s.reg, p, s.now())
}

// Publish attaches cs to the principal's active session. A principal with no
// active session is not an error.
func (s *Synchronizer) Publish(ctx context.Context, principalID string, cs models.ClaimSet) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Provider(), s.log, "claims publish")
	defer cancel()

	err := s.idp.AttachClaims(ctx, principalID, cs)
	switch {
	case err == nil:
		metrics.ObservePublish("attached")
		return nil
	case errors.Is(err, ErrNoSession):
		metrics.ObservePublish("no_session")
		return nil
	default:
		metrics.ObservePublish("error")
		return unavailable("identity provider", err)
	}
}

// Invalidate revokes every outstanding session of principalID, so the next
// request has to re-authenticate and gets a freshly projected claim set.
func (s *Synchronizer) Invalidate(ctx context.Context, principalID string) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Provider(), s.log, "session revoke")
	defer cancel()

	if err := s.idp.RevokeSessions(ctx, principalID); err != nil && !errors.Is(err, ErrNoSession) {
		return unavailable("identity provider", err)
	}
	return nil
}

// attached reads the principal's current claim set. ok is false when there is
// none; err is only set for provider failures.
func (s *Synchronizer) attached(ctx context.Context, principalID string) (models.ClaimSet, bool, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Provider(), s.log, "claims read")
	defer cancel()

	cs, err := s.idp.AttachedClaims(ctx, principalID)
	switch {
	case err == nil:
		return cs, true, nil
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrNoClaims):
		return models.ClaimSet{}, false, nil
	default:
		return models.ClaimSet{}, false, err
	}
}
