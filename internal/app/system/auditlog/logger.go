// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Settings for Config.Admin.
const (
	SettingAll = "all" // MongoDB + zap
	SettingDB  = "db"  // MongoDB only
)

// Config holds audit logging configuration.
type Config struct {
	// Admin controls where mutation audit records go. The durable sink can
	// not be turned off: every mutation must leave a record.
	Admin string
}

// Validate rejects settings that would drop the durable sink.
func (c Config) Validate() error {
	switch c.Admin {
	case "", SettingAll, SettingDB:
		return nil
	}
	return fmt.Errorf("audit_log_admin must be %q or %q, got %q", SettingAll, SettingDB, c.Admin)
}

// Sink is the durable append-only store.
type Sink interface {
	Append(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, error)
	Query(ctx context.Context, f audit.QueryFilter) ([]models.AuditRecord, error)
}

// Logger writes audit records to the durable sink and echoes them to zap.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(sink Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if config.Admin == "" {
		config.Admin = SettingAll
	}
	return &Logger{sink: sink, zapLog: zapLog, config: config}
}

// ErrNoSink is returned when a Logger has no durable sink.
var ErrNoSink = errors.New("audit sink is not configured")

// Append durably records rec. The error is returned to the caller: a
// mutation whose audit record was not written must be rolled back.
func (l *Logger) Append(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, error) {
	if l == nil || l.sink == nil {
		return models.AuditRecord{}, ErrNoSink
	}
	stored, err := l.sink.Append(ctx, rec)
	if err != nil {
		l.zapLog.Error("failed to store audit record",
			zap.Error(err),
			zap.String("operation", rec.Operation),
			zap.String("target_id", rec.TargetID),
		)
		return models.AuditRecord{}, err
	}
	if l.config.Admin == SettingAll {
		l.logToZap(stored)
	}
	return stored, nil
}

// AppendBestEffort records rec and only logs a failure. Used for records of
// calls that were already rejected, where there is nothing to roll back.
func (l *Logger) AppendBestEffort(ctx context.Context, rec models.AuditRecord) {
	if l == nil {
		return
	}
	_, _ = l.Append(ctx, rec)
}

// Query reads records back, newest first.
func (l *Logger) Query(ctx context.Context, f audit.QueryFilter) ([]models.AuditRecord, error) {
	if l == nil || l.sink == nil {
		return nil, ErrNoSink
	}
	return l.sink.Query(ctx, f)
}

// logToZap logs the record with consistent structure.
func (l *Logger) logToZap(rec models.AuditRecord) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("audit_id", rec.ID.Hex()),
		zap.String("operation", rec.Operation),
		zap.String("actor_id", rec.ActorID),
		zap.String("target_id", rec.TargetID),
		zap.Bool("success", rec.Success),
	}
	if rec.Bootstrap {
		fields = append(fields, zap.Bool("bootstrap", true))
	}
	if rec.Before != nil {
		fields = append(fields, zap.Strings("before_roles", rec.Before.Roles), zap.String("before_status", rec.Before.Status))
	}
	if rec.After != nil {
		fields = append(fields, zap.Strings("after_roles", rec.After.Roles), zap.String("after_status", rec.After.Status))
	}
	if rec.FailureKind != "" {
		fields = append(fields, zap.String("failure_kind", rec.FailureKind))
	}
	if rec.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", rec.FailureReason))
	}

	if rec.Success {
		l.zapLog.Info("audit record", fields...)
	} else {
		l.zapLog.Warn("audit record", fields...)
	}
}
