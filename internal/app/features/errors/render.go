// internal/app/features/errors/render.go
package errors

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"go.uber.org/zap"
)

// MaxBodyBytes caps request bodies accepted by DecodeJSON.
const MaxBodyBytes = 64 << 10

// Body is the JSON shape of every error response.
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Render maps err onto its HTTP status and writes its reason verbatim.
// Errors outside the taxonomy are logged and reported as unavailable so
// nothing fails open.
func Render(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := authz.KindOf(err)
	reason := authz.ReasonOf(err)

	var tagged *authz.Error
	if !errors.As(err, &tagged) {
		if log != nil {
			log.Error("untagged error reached the HTTP layer",
				zap.String("path", r.URL.Path), zap.Error(err))
		}
		reason = "service unavailable"
	}
	if kind == authz.KindUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	JSON(w, kind.HTTPStatus(), Body{Error: reason, Kind: kind.String()})
}

// DecodeJSON reads one JSON object from r's body into v. Unknown fields and
// trailing data are rejected as InvalidInput.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return authz.NewError(authz.KindInvalidInput, "request body is required", err)
		}
		return authz.NewError(authz.KindInvalidInput, "malformed JSON body: "+err.Error(), err)
	}
	if dec.More() {
		return authz.NewError(authz.KindInvalidInput, "request body must contain a single JSON object", nil)
	}
	return nil
}

// NotFound is the router's JSON 404.
func NotFound(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusNotFound, Body{Error: "no route for " + r.Method + " " + r.URL.Path, Kind: authz.KindNotFound.String()})
}

// MethodNotAllowed is the router's JSON 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusMethodNotAllowed, Body{Error: "method " + r.Method + " not allowed", Kind: "method_not_allowed"})
}
