package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/metering"
	"github.com/windi-project/windi-core/pkg/token"
)

// AdminService exposes sovereign-only operator controls over Bridge
// client state. Simulation mode is modeled as an explicit, per-client
// override rather than a hidden global toggle: a tactical or strategic
// token can never flip it, only a Sovereign (s_level == 3) token can.
type AdminService struct {
	Bridge *bridge.Bridge
}

type simulationModeRequest struct {
	ClientID string `json:"client_id"`
	Enabled  bool   `json:"enabled"`
}

// HandleSetSimulationMode handles POST /api/v1/admin/simulation-mode.
func (s *AdminService) HandleSetSimulationMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	principal := Principal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, "missing principal")
		return
	}
	if principal.SLevel != token.SLevelSovereign {
		WriteForbidden(w, "simulation-mode overrides require s_level 3")
		return
	}

	var req simulationModeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.ClientID == "" {
		WriteBadRequest(w, "missing client_id")
		return
	}

	s.Bridge.SetSimulationMode(req.ClientID, req.Enabled)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"client_id": req.ClientID,
		"enabled":   req.Enabled,
	})
}

// HandleUsage handles GET /api/v1/admin/usage?client_id=...&period=daily|monthly,
// reporting per-client ingestion/rejection counts from the Bridge's
// optional Meter. Sovereign-gated like simulation mode: usage figures
// can inform quota or billing decisions the same way a hold decision
// can, so they get the same operator-only bar.
func (s *AdminService) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	principal := Principal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, "missing principal")
		return
	}
	if principal.SLevel != token.SLevelSovereign {
		WriteForbidden(w, "usage queries require s_level 3")
		return
	}

	if s.Bridge.Meter == nil {
		WriteNotFound(w, "metering not configured")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		WriteBadRequest(w, "missing client_id")
		return
	}

	period := metering.DailyPeriod()
	if r.URL.Query().Get("period") == "monthly" {
		period = metering.MonthlyPeriod()
	}

	usage, err := s.Bridge.Meter.GetUsage(r.Context(), clientID, period)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, usage)
}
