package authz_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dalemusser/portalauthz/internal/app/system/authz"
)

func TestError_IsAndKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", authz.NewError(authz.KindConflict, "principal was modified", nil))

	if !errors.Is(err, authz.ErrConflict) {
		t.Error("errors.Is(err, ErrConflict) = false")
	}
	if errors.Is(err, authz.ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true")
	}
	if got := authz.KindOf(err); got != authz.KindConflict {
		t.Errorf("KindOf = %v, want conflict", got)
	}
	if got := authz.ReasonOf(err); got != "principal was modified" {
		t.Errorf("ReasonOf = %q", got)
	}
}

func TestKindOf_UntaggedIsUnavailable(t *testing.T) {
	if got := authz.KindOf(errors.New("boom")); got != authz.KindUnavailable {
		t.Errorf("KindOf(untagged) = %v, want unavailable", got)
	}
	if got := authz.KindOf(nil); got != authz.KindNone {
		t.Errorf("KindOf(nil) = %v, want none", got)
	}
}

func TestUnavailable_KeepsDeadline(t *testing.T) {
	err := authz.Unavailable("principal store", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected DeadlineExceeded to be preserved")
	}
	if !errors.Is(err, authz.ErrUnavailable) {
		t.Error("expected ErrUnavailable")
	}
	if got := authz.ReasonOf(err); got != "principal store timed out" {
		t.Errorf("ReasonOf = %q", got)
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind authz.Kind
		want int
	}{
		{authz.KindPermissionDenied, http.StatusForbidden},
		{authz.KindUnapprovedStatus, http.StatusForbidden},
		{authz.KindNotFound, http.StatusNotFound},
		{authz.KindInvalidRole, http.StatusBadRequest},
		{authz.KindInvalidCapability, http.StatusBadRequest},
		{authz.KindConflict, http.StatusConflict},
		{authz.KindUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
