// Package principaladmin is the Administrative Mutation API: the only code
// path that changes a principal's roles, status, overrides or memberships.
//
// Every call is one unit of work: a versioned store write, a durable audit
// record, then session invalidation. If a later step fails the earlier ones
// are compensated, so callers never see a persisted change that was not
// audited or a revoked session whose change was not persisted.
package principaladmin

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/htmlsanitize"
	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Store is the principal store as seen by the mutation API.
type Store interface {
	Get(ctx context.Context, id string) (models.Principal, error)
	GetByEmail(ctx context.Context, email string) (models.Principal, error)
	List(ctx context.Context, f principals.ListFilter) ([]models.Principal, error)
	Count(ctx context.Context) (int64, error)
	Insert(ctx context.Context, p models.Principal) (models.Principal, error)
	Update(ctx context.Context, p models.Principal, expectedVersion int64) (models.Principal, error)
	DeleteIfVersion(ctx context.Context, id string, version int64) error
}

// Auditor appends audit records durably and reads them back.
type Auditor interface {
	Append(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, error)
	Query(ctx context.Context, f audit.QueryFilter) ([]models.AuditRecord, error)
}

// Claims is the claims synchronizer.
type Claims interface {
	Project(p models.Principal) models.ClaimSet
	Publish(ctx context.Context, principalID string, cs models.ClaimSet) error
	Invalidate(ctx context.Context, principalID string) error
}

// Authorizer resolves the actor's capabilities.
type Authorizer interface {
	Require(ctx context.Context, req authz.Request) error
}

// DefaultInvalidateAttempts bounds the synchronous invalidate retry.
const DefaultInvalidateAttempts = 3

// Service implements the mutation API.
type Service struct {
	reg     *roles.Registry
	store   Store
	audit   Auditor
	claims  Claims
	authz   Authorizer
	log     *zap.Logger
	retries int
	backoff time.Duration
}

// New wires a Service.
func New(reg *roles.Registry, store Store, auditor Auditor, claims Claims, authorizer Authorizer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		reg:     reg,
		store:   store,
		audit:   auditor,
		claims:  claims,
		authz:   authorizer,
		log:     log,
		retries: DefaultInvalidateAttempts,
		backoff: 50 * time.Millisecond,
	}
}

// SetInvalidateRetry overrides the invalidate attempts and base backoff.
func (s *Service) SetInvalidateRetry(attempts int, base time.Duration) {
	if attempts > 0 {
		s.retries = attempts
	}
	if base >= 0 {
		s.backoff = base
	}
}

// mutation describes one call to the API.
type mutation struct {
	op              string
	actorID         string
	targetID        string
	expectedVersion int64
	note            string

	// validate checks the input before anything is read or written.
	validate func() error
	// apply edits a copy of the target. It may reject the target's current
	// state.
	apply func(p *models.Principal) error
	// grants lists roles the actor is handing out; the actor must hold a
	// role ranked at least as high as each.
	grants []string
}

// run executes m: validate, authorize, read, write, audit, invalidate.
func (s *Service) run(ctx context.Context, m mutation) (models.Principal, error) {
	m.note = htmlsanitize.PlainText(m.note)

	p, err := s.runSteps(ctx, m)
	if err != nil {
		metrics.ObserveMutation(m.op, authz.KindOf(err).String())
		s.log.Warn("principal mutation failed",
			zap.String("operation", m.op),
			zap.String("actor_id", m.actorID),
			zap.String("target_id", m.targetID),
			zap.Error(err))
		return models.Principal{}, err
	}
	metrics.ObserveMutation(m.op, "ok")
	s.log.Info("principal mutated",
		zap.String("operation", m.op),
		zap.String("actor_id", m.actorID),
		zap.String("target_id", m.targetID),
		zap.Int64("version", p.Version))
	return p, nil
}

func (s *Service) runSteps(ctx context.Context, m mutation) (models.Principal, error) {
	if m.targetID == "" {
		return s.reject(ctx, m, nil, authz.NewError(authz.KindInvalidInput, "target principal id is required", nil))
	}
	if m.validate != nil {
		if err := m.validate(); err != nil {
			return s.reject(ctx, m, nil, err)
		}
	}
	if err := s.authorize(ctx, m.actorID, roles.CapUserManagement); err != nil {
		return s.reject(ctx, m, nil, err)
	}
	if m.actorID == m.targetID {
		return s.reject(ctx, m, nil, authz.NewError(authz.KindPermissionDenied,
			"principals cannot change their own authorization outside bootstrap", nil))
	}
	if len(m.grants) > 0 {
		if err := s.checkGrantRank(ctx, m.actorID, m.grants); err != nil {
			return s.reject(ctx, m, nil, err)
		}
	}

	before, err := s.get(ctx, m.targetID)
	if err != nil {
		return s.reject(ctx, m, nil, err)
	}
	version := m.expectedVersion
	if version == 0 {
		version = before.Version
	}
	if version != before.Version {
		return s.reject(ctx, m, &before, authz.NewError(authz.KindConflict, "principal was modified concurrently", principals.ErrVersionConflict))
	}

	after := before.Clone()
	if err := m.apply(&after); err != nil {
		return s.reject(ctx, m, &before, err)
	}

	updated, err := s.update(ctx, after, version)
	if err != nil {
		return s.reject(ctx, m, &before, err)
	}

	rec := models.AuditRecord{
		Operation: m.op,
		ActorID:   m.actorID,
		TargetID:  m.targetID,
		Before:    models.SnapshotOf(before),
		After:     models.SnapshotOf(updated),
		Success:   true,
		Note:      m.note,
	}
	if err := s.appendAudit(ctx, rec); err != nil {
		cause := authz.Unavailable("audit sink", err)
		s.rollback(ctx, before, updated, m, cause)
		return models.Principal{}, cause
	}

	if err := s.invalidate(ctx, m.targetID); err != nil {
		s.rollback(ctx, before, updated, m, err)
		return models.Principal{}, err
	}
	return updated, nil
}

// rollback compensates a write whose later step failed. Claims projected from
// updated may already sit on the target's sessions (a concurrent decision
// republishes them), so the sessions are revoked once the store is restored.
func (s *Service) rollback(ctx context.Context, before, updated models.Principal, m mutation, cause error) {
	restored, ok := s.restore(ctx, before, updated, m, authz.ReasonOf(cause))
	if !ok {
		return
	}
	s.auditRollback(ctx, m, updated, restored, cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Provider())
	defer cancel()
	if err := s.claims.Invalidate(cctx, m.targetID); err != nil {
		s.log.Error("session revoke after rollback failed; claims may outlive the rolled back change",
			zap.String("operation", m.op),
			zap.String("target_id", m.targetID),
			zap.Error(err))
	}
}

// authorize checks that actorID resolves capability. Denials and unknown
// actors become PermissionDenied; Unavailable passes through.
func (s *Service) authorize(ctx context.Context, actorID, capability string) error {
	if actorID == "" {
		return authz.NewError(authz.KindPermissionDenied, "actor is required", nil)
	}
	err := s.authz.Require(ctx, authz.Request{PrincipalID: actorID, Capability: capability})
	switch authz.KindOf(err) {
	case authz.KindNone:
		return nil
	case authz.KindUnavailable:
		return err
	default:
		return authz.NewError(authz.KindPermissionDenied, "actor lacks "+capability, err)
	}
}

func (s *Service) checkGrantRank(ctx context.Context, actorID string, grants []string) error {
	actor, err := s.get(ctx, actorID)
	if err != nil {
		if authz.KindOf(err) == authz.KindNotFound {
			return authz.NewError(authz.KindPermissionDenied, "actor lacks "+roles.CapUserManagement, err)
		}
		return err
	}
	actor.DefaultRoles(s.reg.Baseline())
	for _, r := range actor.Roles {
		if s.reg.IsWildcard(r) {
			return nil
		}
	}
	for _, g := range grants {
		if !s.reg.AnyAtLeast(s.reg.RankOf(g), actor.Roles...) {
			return authz.NewError(authz.KindPermissionDenied, "cannot grant role "+g+" ranked above your own", nil)
		}
	}
	return nil
}

func (s *Service) get(ctx context.Context, id string) (models.Principal, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal get")
	defer cancel()
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Principal{}, storeError(err)
	}
	return p, nil
}

func (s *Service) update(ctx context.Context, p models.Principal, version int64) (models.Principal, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal update")
	defer cancel()
	updated, err := s.store.Update(ctx, p, version)
	if err != nil {
		return models.Principal{}, storeError(err)
	}
	return updated, nil
}

func (s *Service) appendAudit(ctx context.Context, rec models.AuditRecord) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "audit append")
	defer cancel()
	_, err := s.audit.Append(ctx, rec)
	return err
}

// invalidate retries a bounded number of times with exponential backoff.
func (s *Service) invalidate(ctx context.Context, principalID string) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.backoff
	exp.MaxInterval = 8 * s.backoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.retries-1)), ctx)

	err := backoff.Retry(func() error {
		return s.claims.Invalidate(ctx, principalID)
	}, b)
	if err == nil {
		return nil
	}
	var tagged *authz.Error
	if errors.As(err, &tagged) {
		return err
	}
	return authz.Unavailable("identity provider", err)
}

// restore writes before's authorization fields back over updated. It uses a
// fresh context so a cancelled request still gets compensated.
func (s *Service) restore(ctx context.Context, before, updated models.Principal, m mutation, why string) (models.Principal, bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Store())
	defer cancel()

	back := updated.Clone()
	back.Roles = before.Clone().Roles
	back.Role = before.Role
	back.Status = before.Status
	back.PermissionOverrides = before.Clone().PermissionOverrides
	back.OrganizationMemberships = before.Clone().OrganizationMemberships

	restored, err := s.store.Update(cctx, back, updated.Version)
	if err != nil {
		s.log.Error("compensating restore failed; principal left in mutated state",
			zap.String("operation", m.op),
			zap.String("target_id", m.targetID),
			zap.String("cause", why),
			zap.Error(err))
		return models.Principal{}, false
	}
	s.log.Warn("principal mutation rolled back",
		zap.String("operation", m.op),
		zap.String("target_id", m.targetID),
		zap.String("cause", why))
	return restored, true
}

func (s *Service) auditRollback(ctx context.Context, m mutation, from, to models.Principal, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Store())
	defer cancel()
	rec := models.AuditRecord{
		Operation:     models.OpRollback,
		ActorID:       m.actorID,
		TargetID:      m.targetID,
		Before:        models.SnapshotOf(from),
		After:         models.SnapshotOf(to),
		Success:       true,
		FailureKind:   authz.KindOf(cause).String(),
		FailureReason: "rolled back " + m.op + ": " + authz.ReasonOf(cause),
	}
	if _, err := s.audit.Append(cctx, rec); err != nil {
		s.log.Error("rollback audit append failed", zap.String("target_id", m.targetID), zap.Error(err))
	}
}

// reject records a failed call (best effort) and returns err.
func (s *Service) reject(ctx context.Context, m mutation, before *models.Principal, err error) (models.Principal, error) {
	rec := models.AuditRecord{
		Operation:     m.op,
		ActorID:       m.actorID,
		TargetID:      m.targetID,
		Success:       false,
		FailureKind:   authz.KindOf(err).String(),
		FailureReason: authz.ReasonOf(err),
		Note:          m.note,
	}
	if before != nil {
		rec.Before = models.SnapshotOf(*before)
	}
	if aerr := s.appendAudit(ctx, rec); aerr != nil {
		s.log.Warn("failed to audit rejected mutation", zap.String("operation", m.op), zap.Error(aerr))
	}
	return models.Principal{}, err
}

// storeError maps store sentinels onto the error taxonomy.
func storeError(err error) error {
	switch {
	case errors.Is(err, principals.ErrNotFound):
		return authz.NewError(authz.KindNotFound, "principal not found", err)
	case errors.Is(err, principals.ErrVersionConflict):
		return authz.NewError(authz.KindConflict, "principal was modified concurrently", err)
	case errors.Is(err, principals.ErrDuplicateEmail):
		return authz.NewError(authz.KindConflict, "email already registered", err)
	default:
		return authz.Unavailable("principal store", err)
	}
}
