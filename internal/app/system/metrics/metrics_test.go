package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecision(t *testing.T) {
	before := testutil.ToFloat64(decisionsTotal.WithLabelValues("deny", "not-owner", "claims"))
	ObserveDecision("deny", "not-owner", "claims", time.Millisecond)
	after := testutil.ToFloat64(decisionsTotal.WithLabelValues("deny", "not-owner", "claims"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	Register()
	Register()
	ObserveMutation("set_roles", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authz_mutations_total") {
		t.Error("metrics output missing authz_mutations_total")
	}
}
