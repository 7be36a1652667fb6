package principaladmin

import (
	"context"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
)

// Principal returns one principal for an operator with user_management.
func (s *Service) Principal(ctx context.Context, actorID, targetID string) (models.Principal, error) {
	if err := s.authorize(ctx, actorID, roles.CapUserManagement); err != nil {
		return models.Principal{}, err
	}
	return s.get(ctx, targetID)
}

// ListByStatus lists principals in one status (the pending-approval queue
// when status is "pending").
func (s *Service) ListByStatus(ctx context.Context, actorID, status string, limit int64) ([]models.Principal, error) {
	if err := s.authorize(ctx, actorID, roles.CapUserManagement); err != nil {
		return nil, err
	}
	if !models.IsValidStatus(status) {
		return nil, authz.NewError(authz.KindInvalidInput, "unknown status "+status, nil)
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal list")
	defer cancel()
	out, err := s.store.List(ctx, principals.ListFilter{Statuses: []string{status}, Limit: limit})
	if err != nil {
		return nil, authz.Unavailable("principal store", err)
	}
	return out, nil
}

// AuditLog returns audit records for an operator with user_management.
func (s *Service) AuditLog(ctx context.Context, actorID string, f audit.QueryFilter) ([]models.AuditRecord, error) {
	if err := s.authorize(ctx, actorID, roles.CapUserManagement); err != nil {
		return nil, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "audit query")
	defer cancel()
	out, err := s.audit.Query(ctx, f)
	if err != nil {
		return nil, authz.Unavailable("audit sink", err)
	}
	return out, nil
}
