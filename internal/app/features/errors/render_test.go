package errors_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantError  string
	}{
		{"denied", authz.NewError(authz.KindPermissionDenied, "insufficient-role", nil), http.StatusForbidden, "permission_denied", "insufficient-role"},
		{"unapproved", authz.NewError(authz.KindUnapprovedStatus, "unapproved-status", nil), http.StatusForbidden, "unapproved_status", "unapproved-status"},
		{"not found", authz.NewError(authz.KindNotFound, "principal not found", nil), http.StatusNotFound, "not_found", "principal not found"},
		{"invalid role", authz.NewError(authz.KindInvalidRole, `unknown role "x"`, nil), http.StatusBadRequest, "invalid_role", `unknown role "x"`},
		{"conflict", authz.NewError(authz.KindConflict, "principal was modified concurrently", nil), http.StatusConflict, "conflict", "principal was modified concurrently"},
		{"unavailable", authz.Unavailable("principal store", errors.New("down")), http.StatusServiceUnavailable, "unavailable", "principal store unavailable"},
		{"untagged", errors.New("leaked driver detail"), http.StatusServiceUnavailable, "unavailable", "service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			apierr.Render(rec, httptest.NewRequest("GET", "/x", nil), zap.NewNop(), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body apierr.Body
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Kind != tt.wantKind || body.Error != tt.wantError {
				t.Errorf("body = %+v, want {%s %s}", body, tt.wantError, tt.wantKind)
			}
		})
	}
}

func TestRender_LogsUntagged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	apierr.Render(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil), zap.New(core), errors.New("boom"))
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Roles []string `json:"roles"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"roles":["admin"]}`, false},
		{"empty", ``, true},
		{"unknown field", `{"roles":[],"role":"x"}`, true},
		{"trailing", `{"roles":[]} {}`, true},
		{"malformed", `{"roles":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/x", strings.NewReader(tt.body))
			var p payload
			err := apierr.DecodeJSON(httptest.NewRecorder(), req, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, authz.ErrInvalidInput) {
				t.Errorf("err = %v, want InvalidInput", err)
			}
		})
	}
}
