// internal/app/features/principals/handler.go
package principals

import (
	"context"

	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Admin is the slice of the mutation API this feature drives.
type Admin interface {
	Principal(ctx context.Context, actorID, targetID string) (models.Principal, error)
	ListByStatus(ctx context.Context, actorID, status string, limit int64) ([]models.Principal, error)
	SetRoles(ctx context.Context, actorID, targetID string, roles []string, expectedVersion int64) (models.Principal, error)
	SetStatus(ctx context.Context, actorID, targetID, status string, expectedVersion int64) (models.Principal, error)
	SetOverrides(ctx context.Context, actorID, targetID string, overrides []string, expectedVersion int64) (models.Principal, error)
	SetMemberships(ctx context.Context, actorID, targetID string, ms []models.OrgMembership, expectedVersion int64) (models.Principal, error)
	Approve(ctx context.Context, actorID, targetID, role, reason string, expectedVersion int64) (models.Principal, error)
	Deny(ctx context.Context, actorID, targetID, reason string, expectedVersion int64) (models.Principal, error)
	SyncClaims(ctx context.Context, actorID string) (principaladmin.SyncReport, error)
}

// Handler serves the principal administration endpoints.
type Handler struct {
	Admin   Admin
	Retries int
	Log     *zap.Logger
}

// NewHandler constructs a principals Handler. retries bounds the automatic
// retry on Conflict for requests that omit expected_version.
func NewHandler(admin Admin, retries int, logger *zap.Logger) *Handler {
	if retries < 1 {
		retries = 1
	}
	return &Handler{Admin: admin, Retries: retries, Log: logger}
}
