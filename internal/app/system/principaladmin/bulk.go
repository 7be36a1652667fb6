package principaladmin

import (
	"context"
	"fmt"

	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// SyncReport summarizes a claims resync.
type SyncReport struct {
	Scanned   int      `json:"scanned"`
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// SyncClaims re-projects every approved or active principal and publishes
// the result to their sessions. The actor needs system_admin.
func (s *Service) SyncClaims(ctx context.Context, actorID string) (SyncReport, error) {
	if err := s.authorize(ctx, actorID, roles.CapSystemAdmin); err != nil {
		return SyncReport{}, err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), s.log, "claims resync")
	defer cancel()

	list, err := s.store.List(ctx, principals.ListFilter{Statuses: []string{models.StatusApproved, models.StatusActive}})
	if err != nil {
		return SyncReport{}, authz.Unavailable("principal store", err)
	}

	var rep SyncReport
	for _, p := range list {
		rep.Scanned++
		if err := s.claims.Publish(ctx, p.ID, s.claims.Project(p)); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %s", p.ID, authz.ReasonOf(err)))
			continue
		}
		rep.Published++
	}
	s.log.Info("claims resync finished",
		zap.String("actor_id", actorID),
		zap.Int("scanned", rep.Scanned),
		zap.Int("published", rep.Published),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

// MigrationReport summarizes a role migration.
type MigrationReport struct {
	Scanned  int      `json:"scanned"`
	Migrated int      `json:"migrated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// MigrateRoles rewrites principals that only carry the legacy single role
// field, or that hold legacy role spellings, onto registry role ids. Each
// rewrite goes through SetRoles, so it is audited and invalidates sessions.
func (s *Service) MigrateRoles(ctx context.Context, actorID string, dryRun bool) (MigrationReport, error) {
	if err := s.authorize(ctx, actorID, roles.CapUserManagement); err != nil {
		return MigrationReport{}, err
	}

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), s.log, "role migration list")
	list, err := s.store.List(lctx, principals.ListFilter{})
	cancel()
	if err != nil {
		return MigrationReport{}, authz.Unavailable("principal store", err)
	}

	var rep MigrationReport
	for _, p := range list {
		rep.Scanned++
		target, changed := canonicalRoles(p)
		if !changed {
			rep.Skipped++
			continue
		}
		if p.ID == actorID {
			rep.Skipped++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: skipped own record", p.ID))
			continue
		}
		if dryRun {
			rep.Migrated++
			continue
		}
		if _, err := s.SetRoles(ctx, actorID, p.ID, target, p.Version); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %s", p.ID, authz.ReasonOf(err)))
			continue
		}
		rep.Migrated++
	}
	s.log.Info("role migration finished",
		zap.String("actor_id", actorID),
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", rep.Scanned),
		zap.Int("migrated", rep.Migrated),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

// canonicalRoles maps p's roles onto registry ids. changed is true when the
// stored record needs a rewrite.
func canonicalRoles(p models.Principal) ([]string, bool) {
	p.SyncPrimaryRole()
	changed := p.LegacyRoleOnly
	out := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		c, legacy := roles.Canonical(r)
		if legacy || c != r {
			changed = true
		}
		out = append(out, c)
	}
	out = normalize.IDs(out)
	if len(out) != len(p.Roles) {
		changed = true
	}
	return out, changed
}
