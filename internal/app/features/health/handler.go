package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client Pinger
	Reg    *roles.Registry
	Log    *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(client Pinger, reg *roles.Registry, logger *zap.Logger) *Handler {
	return &Handler{Client: client, Reg: reg, Log: logger}
}

type healthResponse struct {
	Status          string `json:"status"`
	Database        string `json:"database"`
	RegistryVersion int    `json:"registry_version,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "registry_version":3 }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable" }
//
// The driver error is logged, not returned.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok", Database: "connected"}
	if h.Reg != nil {
		resp.RegistryVersion = h.Reg.Version()
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
	}
	_ = json.NewEncoder(w).Encode(resp)
}
