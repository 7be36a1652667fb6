package principaladmin

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/domain/models"
)

// SetRoles replaces the target's roles. expectedVersion 0 means "the version
// read at the start of this call"; a concurrent write still yields Conflict.
func (s *Service) SetRoles(ctx context.Context, actorID, targetID string, newRoles []string, expectedVersion int64) (models.Principal, error) {
	ids := normalize.IDs(newRoles)
	return s.run(ctx, mutation{
		op:              models.OpSetRoles,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		grants:          ids,
		validate:        func() error { return s.validateRoles(ids) },
		apply: func(p *models.Principal) error {
			p.Roles = ids
			p.SyncPrimaryRole()
			return nil
		},
	})
}

// SetStatus changes the target's approval status.
func (s *Service) SetStatus(ctx context.Context, actorID, targetID, status string, expectedVersion int64) (models.Principal, error) {
	status = normalize.Status(status)
	return s.run(ctx, mutation{
		op:              models.OpSetStatus,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		validate: func() error {
			if !models.IsValidStatus(status) {
				return authz.NewError(authz.KindInvalidInput, fmt.Sprintf("unknown status %q", status), nil)
			}
			return nil
		},
		apply: func(p *models.Principal) error {
			p.Status = status
			return nil
		},
	})
}

// SetOverrides replaces the target's extra capabilities.
func (s *Service) SetOverrides(ctx context.Context, actorID, targetID string, overrides []string, expectedVersion int64) (models.Principal, error) {
	caps := normalize.IDs(overrides)
	return s.run(ctx, mutation{
		op:              models.OpSetOverrides,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		validate: func() error {
			for _, c := range caps {
				if !s.reg.IsKnownCapability(c) {
					return authz.NewError(authz.KindInvalidCapability, fmt.Sprintf("unknown capability %q", c), nil)
				}
			}
			return nil
		},
		apply: func(p *models.Principal) error {
			p.PermissionOverrides = caps
			return nil
		},
	})
}

// SetMemberships replaces the target's organization memberships.
func (s *Service) SetMemberships(ctx context.Context, actorID, targetID string, memberships []models.OrgMembership, expectedVersion int64) (models.Principal, error) {
	clean := make([]models.OrgMembership, 0, len(memberships))
	var grants []string
	for _, m := range memberships {
		role := roles.Normalize(m.Role)
		clean = append(clean, models.OrgMembership{OrganizationID: strings.TrimSpace(m.OrganizationID), Role: role})
		grants = append(grants, role)
	}
	return s.run(ctx, mutation{
		op:              models.OpSetMemberships,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		grants:          grants,
		validate: func() error {
			seen := make(map[string]struct{}, len(clean))
			for _, m := range clean {
				if m.OrganizationID == "" {
					return authz.NewError(authz.KindInvalidInput, "organization id is required", nil)
				}
				if _, dup := seen[m.OrganizationID]; dup {
					return authz.NewError(authz.KindInvalidInput, fmt.Sprintf("duplicate organization %q", m.OrganizationID), nil)
				}
				seen[m.OrganizationID] = struct{}{}
				if err := s.validateRoles([]string{m.Role}); err != nil {
					return err
				}
			}
			return nil
		},
		apply: func(p *models.Principal) error {
			if len(clean) == 0 {
				p.OrganizationMemberships = nil
				return nil
			}
			p.OrganizationMemberships = clean
			return nil
		},
	})
}

// Approve moves a pending principal to approved with a single role.
// An empty role selects the registry baseline.
func (s *Service) Approve(ctx context.Context, actorID, targetID, role, reason string, expectedVersion int64) (models.Principal, error) {
	role = roles.Normalize(role)
	if role == "" {
		role = s.reg.Baseline()
	}
	return s.run(ctx, mutation{
		op:              models.OpApprove,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		note:            reason,
		grants:          []string{role},
		validate:        func() error { return s.validateRoles([]string{role}) },
		apply: func(p *models.Principal) error {
			if p.Status != models.StatusPending {
				return authz.NewError(authz.KindInvalidInput, "principal is not pending approval", nil)
			}
			p.Status = models.StatusApproved
			p.Roles = []string{role}
			p.SyncPrimaryRole()
			return nil
		},
	})
}

// Deny rejects a pending principal.
func (s *Service) Deny(ctx context.Context, actorID, targetID, reason string, expectedVersion int64) (models.Principal, error) {
	return s.run(ctx, mutation{
		op:              models.OpDeny,
		actorID:         actorID,
		targetID:        targetID,
		expectedVersion: expectedVersion,
		note:            reason,
		apply: func(p *models.Principal) error {
			if p.Status != models.StatusPending {
				return authz.NewError(authz.KindInvalidInput, "principal is not pending approval", nil)
			}
			p.Status = models.StatusRejected
			return nil
		},
	})
}

func (s *Service) validateRoles(ids []string) error {
	if len(ids) == 0 {
		return authz.NewError(authz.KindInvalidRole, "at least one role is required", nil)
	}
	for _, id := range ids {
		if !s.reg.IsKnown(id) {
			return authz.NewError(authz.KindInvalidRole, fmt.Sprintf("unknown role %q", id), nil)
		}
		if id == s.reg.AnonymousRole() {
			return authz.NewError(authz.KindInvalidRole, fmt.Sprintf("role %q cannot be assigned", id), nil)
		}
	}
	return nil
}
