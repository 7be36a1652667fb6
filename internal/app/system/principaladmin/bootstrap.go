package principaladmin

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/ids"
	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// Bootstrap creates the first principal with the root role. It is the only
// self-targeting mutation and only succeeds while the store is empty. The
// audit record is flagged bootstrap: true.
func (s *Service) Bootstrap(ctx context.Context, email, displayName string) (models.Principal, error) {
	email = normalize.Email(email)
	if !strings.Contains(email, "@") {
		return models.Principal{}, authz.NewError(authz.KindInvalidInput, "a valid email is required", nil)
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal count")
	n, err := s.store.Count(cctx)
	cancel()
	if err != nil {
		return models.Principal{}, authz.Unavailable("principal store", err)
	}
	if n > 0 {
		err := authz.NewError(authz.KindPermissionDenied, "bootstrap is only allowed when no principals exist", nil)
		metrics.ObserveMutation(models.OpBootstrap, authz.KindOf(err).String())
		return models.Principal{}, err
	}

	p, err := s.create(ctx, models.Principal{
		ID:          ids.New(),
		Email:       email,
		DisplayName: displayName,
		Roles:       []string{roles.Root},
		Status:      models.StatusActive,
	}, models.OpBootstrap, true)
	if err != nil {
		metrics.ObserveMutation(models.OpBootstrap, authz.KindOf(err).String())
		return models.Principal{}, err
	}
	metrics.ObserveMutation(models.OpBootstrap, "ok")
	s.log.Warn("bootstrap principal created",
		zap.String("principal_id", p.ID), zap.String("email", p.Email))
	return p, nil
}

// RegisterPending creates a pending principal holding only the baseline role
// for an email seen at sign-in for the first time. An existing principal is
// returned unchanged with created=false.
func (s *Service) RegisterPending(ctx context.Context, email, displayName string) (models.Principal, bool, error) {
	email = normalize.Email(email)
	if !strings.Contains(email, "@") {
		return models.Principal{}, false, authz.NewError(authz.KindInvalidInput, "a valid email is required", nil)
	}

	if existing, err := s.getByEmail(ctx, email); err == nil {
		return existing, false, nil
	} else if authz.KindOf(err) != authz.KindNotFound {
		return models.Principal{}, false, err
	}

	p, err := s.create(ctx, models.Principal{
		ID:          ids.New(),
		Email:       email,
		DisplayName: displayName,
		Roles:       []string{s.reg.Baseline()},
		Status:      models.StatusPending,
	}, models.OpSelfRegistration, false)
	if errors.Is(err, authz.ErrConflict) {
		// Lost a race with another sign-in for the same email.
		existing, gerr := s.getByEmail(ctx, email)
		if gerr != nil {
			return models.Principal{}, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		metrics.ObserveMutation(models.OpSelfRegistration, authz.KindOf(err).String())
		return models.Principal{}, false, err
	}
	metrics.ObserveMutation(models.OpSelfRegistration, "ok")
	s.log.Info("pending principal registered", zap.String("principal_id", p.ID))
	return p, true, nil
}

// create inserts p and audits it as a self-targeted operation. The insert is
// undone if the audit append fails.
func (s *Service) create(ctx context.Context, p models.Principal, op string, bootstrap bool) (models.Principal, error) {
	ictx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal insert")
	created, err := s.store.Insert(ictx, p)
	cancel()
	if err != nil {
		return models.Principal{}, storeError(err)
	}

	rec := models.AuditRecord{
		Operation: op,
		ActorID:   created.ID,
		TargetID:  created.ID,
		After:     models.SnapshotOf(created),
		Success:   true,
		Bootstrap: bootstrap,
	}
	if err := s.appendAudit(ctx, rec); err != nil {
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Store())
		defer dcancel()
		if derr := s.store.DeleteIfVersion(dctx, created.ID, created.Version); derr != nil {
			s.log.Error("failed to undo unaudited insert",
				zap.String("principal_id", created.ID), zap.Error(derr))
		}
		return models.Principal{}, authz.Unavailable("audit sink", err)
	}
	return created, nil
}

func (s *Service) getByEmail(ctx context.Context, email string) (models.Principal, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), s.log, "principal get by email")
	defer cancel()
	p, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return models.Principal{}, storeError(err)
	}
	return p, nil
}
