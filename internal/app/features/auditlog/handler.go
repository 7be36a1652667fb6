// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Reader returns audit records to an authorized operator.
type Reader interface {
	AuditLog(ctx context.Context, actorID string, f audit.QueryFilter) ([]models.AuditRecord, error)
}

type Handler struct {
	Audit Reader
	Log   *zap.Logger
}

// NewHandler constructs an audit log feature handler.
func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	return &Handler{Audit: reader, Log: logger}
}
