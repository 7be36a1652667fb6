// internal/app/system/authz/resolver.go
package authz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Deny reasons.
const (
	ReasonInsufficientRole  = "insufficient-role"
	ReasonUnapprovedStatus  = "unapproved-status"
	ReasonNotOwner          = "not-owner"
	ReasonUnknownCapability = "unknown-capability"
)

// Resolution paths, reported on Decision.Path and in metrics.
const (
	PathNone      = "none"
	PathAnonymous = "anonymous"
	PathClaims    = "claims"
	PathStore     = "store"
)

// DefaultMaxClaimsAge is the staleness window used when none is configured.
const DefaultMaxClaimsAge = time.Hour

// clockSkew is how far in the future an IssuedAt may be before the claim set
// is treated as stale.
const clockSkew = time.Minute

// Request is one authorization question.
type Request struct {
	// PrincipalID is empty for a request that carries no credential.
	PrincipalID string
	Capability  string
	// ResourceOwnerID is set for resource-scoped actions.
	ResourceOwnerID string
	// OrganizationID, when set, adds the principal's role in that
	// organization to the roles it holds.
	OrganizationID string
}

// Decision is the Resolver's answer. A Deny always carries a Reason.
type Decision struct {
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
	PrincipalID string `json:"principal_id,omitempty"`
	Path        string `json:"path"`
}

// Err returns nil for Allow and a tagged error for Deny, so callers can
// treat a Decision like any other failure.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonUnapprovedStatus {
		return NewError(KindUnapprovedStatus, d.Reason, nil)
	}
	return NewError(KindPermissionDenied, d.Reason, nil)
}

// Message is the user-facing text for a Deny.
func (d Decision) Message(capability string) string {
	switch d.Reason {
	case "":
		return ""
	case ReasonUnapprovedStatus:
		return "your account is pending approval"
	case ReasonNotOwner:
		return "only the owner or an administrator can do this"
	case ReasonUnknownCapability:
		return "unknown capability " + capability
	default:
		return "ask an admin to grant " + capability
	}
}

// PrincipalReader is the read side of the principal store.
type PrincipalReader interface {
	Get(ctx context.Context, id string) (models.Principal, error)
}

// Resolver answers authorization questions. It holds no per-request state
// and may be shared by concurrent requests.
type Resolver struct {
	reg    *roles.Registry
	store  PrincipalReader
	sync   *Synchronizer
	maxAge time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewResolver wires a Resolver. maxAge <= 0 selects DefaultMaxClaimsAge.
func NewResolver(reg *roles.Registry, store PrincipalReader, sync *Synchronizer, maxAge time.Duration, log *zap.Logger) *Resolver {
	if maxAge <= 0 {
		maxAge = DefaultMaxClaimsAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{reg: reg, store: store, sync: sync, maxAge: maxAge, log: log, now: time.Now}
}

// Registry returns the role registry the resolver decides against.
func (r *Resolver) Registry() *roles.Registry { return r.reg }

// Decide resolves req. The error is non-nil only when no decision could be
// made (KindNotFound, KindUnavailable); a Deny is a Decision, not an error.
func (r *Resolver) Decide(ctx context.Context, req Request) (Decision, error) {
	start := r.now()
	d, err := r.decide(ctx, req)
	took := r.now().Sub(start)

	switch {
	case err != nil:
		metrics.ObserveDecision("error", KindOf(err).String(), d.Path, took)
		r.log.Warn("authz decision failed",
			zap.String("principal_id", req.PrincipalID),
			zap.String("capability", req.Capability),
			zap.Error(err))
	case d.Allowed:
		metrics.ObserveDecision("allow", "", d.Path, took)
	default:
		metrics.ObserveDecision("deny", d.Reason, d.Path, took)
		r.log.Debug("authz deny",
			zap.String("principal_id", req.PrincipalID),
			zap.String("capability", req.Capability),
			zap.String("reason", d.Reason),
			zap.String("path", d.Path))
	}
	return d, err
}

// Require is Decide folded into a single error: nil means Allow.
func (r *Resolver) Require(ctx context.Context, req Request) error {
	d, err := r.Decide(ctx, req)
	if err != nil {
		return err
	}
	return d.Err()
}

// ClaimsFor returns the claim set Decide would use for principalID and the
// path it came from. It never returns a set for an unknown principal.
func (r *Resolver) ClaimsFor(ctx context.Context, principalID string) (models.ClaimSet, string, error) {
	pid := strings.TrimSpace(principalID)
	if pid == "" {
		return models.ClaimSet{}, PathNone, NewError(KindInvalidInput, "principal id is required", nil)
	}
	return r.resolveClaims(ctx, pid)
}

func (r *Resolver) decide(ctx context.Context, req Request) (Decision, error) {
	pid := strings.TrimSpace(req.PrincipalID)
	capability := roles.Normalize(req.Capability)

	if pid == "" {
		if !r.reg.IsKnownCapability(capability) {
			return deny("", PathNone, ReasonUnknownCapability), nil
		}
		return r.decideAnonymous(capability, req), nil
	}

	cs, path, err := r.resolveClaims(ctx, pid)
	if err != nil {
		return Decision{PrincipalID: pid, Path: path}, err
	}
	return r.decideWith(cs, pid, capability, req, path), nil
}

func (r *Resolver) decideAnonymous(capability string, req Request) Decision {
	if !contains(r.reg.CapabilitiesFor(r.reg.AnonymousRole()), capability) {
		return deny("", PathAnonymous, ReasonInsufficientRole)
	}
	if req.ResourceOwnerID != "" {
		return deny("", PathAnonymous, ReasonNotOwner)
	}
	return Decision{Allowed: true, Path: PathAnonymous}
}

// resolveClaims returns a usable claim set: the attached one when it is fresh
// and entitled, otherwise a projection of a fresh store read.
func (r *Resolver) resolveClaims(ctx context.Context, pid string) (models.ClaimSet, string, error) {
	if r.sync != nil {
		cs, ok, err := r.sync.attached(ctx, pid)
		if err != nil {
			r.log.Warn("claims read failed; using principal store",
				zap.String("principal_id", pid), zap.Error(err))
		}
		if ok && r.fresh(cs, pid) {
			return cs, PathClaims, nil
		}
	}

	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), r.log, "principal get")
	p, err := r.store.Get(sctx, pid)
	cancel()
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			return models.ClaimSet{}, PathStore, NewError(KindNotFound, "principal not found", err)
		}
		return models.ClaimSet{}, PathStore, unavailable("principal store", err)
	}

	cs := Project(r.reg, p, r.now())
	if r.sync != nil && models.IsEntitledStatus(cs.Status) {
		if err := r.sync.Publish(ctx, pid, cs); err != nil {
			r.log.Warn("claims republish failed",
				zap.String("principal_id", pid), zap.Error(err))
		}
	}
	return cs, PathStore, nil
}

// fresh reports whether an attached claim set may be used without a store
// read.
func (r *Resolver) fresh(cs models.ClaimSet, pid string) bool {
	if cs.PrincipalID != pid || cs.IssuedAt.IsZero() {
		return false
	}
	if !models.IsEntitledStatus(cs.Status) {
		return false
	}
	if cs.RegistryVersion != r.reg.Version() {
		return false
	}
	age := r.now().Sub(cs.IssuedAt)
	return age >= -clockSkew && age <= r.maxAge
}

// decideWith applies the checks in order: status, capability known,
// capability held, ownership.
func (r *Resolver) decideWith(cs models.ClaimSet, pid, capability string, req Request, path string) Decision {
	if !models.IsEntitledStatus(cs.Status) {
		return deny(pid, path, ReasonUnapprovedStatus)
	}
	if !r.reg.IsKnownCapability(capability) {
		return deny(pid, path, ReasonUnknownCapability)
	}

	held := cs.Roles
	granted := contains(cs.Capabilities, capability)
	if req.OrganizationID != "" {
		if orgRole, ok := cs.Orgs[req.OrganizationID]; ok {
			held = append(append([]string(nil), held...), orgRole)
			if !granted {
				granted = contains(r.reg.CapabilitiesFor(orgRole), capability)
			}
		}
	}
	if !granted {
		return deny(pid, path, ReasonInsufficientRole)
	}

	if req.ResourceOwnerID != "" && req.ResourceOwnerID != pid && !r.reg.AnyWildcardOrAdmin(held...) {
		return deny(pid, path, ReasonNotOwner)
	}
	return Decision{Allowed: true, PrincipalID: pid, Path: path}
}

func deny(pid, path, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, PrincipalID: pid, Path: path}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
