package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/token"
)

// motto is stamped onto every health response. WINDI watches the paper
// trail an organization leaves behind, not the AI systems producing it.
const motto = "Govern the document, not the model."

// defaultShelfWindow bounds GET /api/v1/shelf/{shelf} when the caller
// doesn't pass ?n=.
const defaultShelfWindow = 50

// DashboardService exposes the Bridge's read surface: health, the
// aggregator snapshot, per-shelf signal windows, and the static
// registry. A Virtue Token is optional on dashboard and shelf reads —
// when absent the caller sees nothing (both endpoints require a scope
// to filter against); when present, every signal is routed through
// the policy table's visibility filter before serialization.
type DashboardService struct {
	Bridge *bridge.Bridge
	Issuer *token.Issuer
	Policy *token.PolicyTable
}

type healthResponse struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
	Ts       int64  `json:"ts"`
	Motto    string `json:"motto"`
}

// HandleHealth handles GET /api/v1/health.
func (s *DashboardService) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, healthResponse{
		Status:   "ok",
		Protocol: bridge.DefaultProtocolConstraint,
		Ts:       time.Now().UTC().UnixMilli(),
		Motto:    motto,
	})
}

type dashboardResponse struct {
	Meta        bridge.SnapshotMeta                 `json:"meta"`
	Totals      bridge.Totals                       `json:"totals"`
	ByShelf     map[registry.Shelf]int64             `json:"by_shelf"`
	BySeverity  map[registry.Severity]int64          `json:"by_severity"`
	ByEvent     map[string]int64                     `json:"by_event"`
	ShelfHealth map[registry.Shelf]bridge.ShelfHealth `json:"shelf_health"`
	Hotspots    []interface{}                        `json:"hotspots"`
	LiveFeed    []interface{}                        `json:"live_feed"`
	TokenMeta   *token.TokenMeta                      `json:"_token_meta,omitempty"`
}

// HandleDashboard handles GET /api/v1/dashboard. The full snapshot is
// filtered server-side against the presented Virtue Token; shelf-keyed
// maps and the hotspot/live-feed arrays are filtered identically, per
// the filtering contract in pkg/token. No visibility decision is ever
// delegated to the caller.
func (s *DashboardService) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	vt, err := s.optionalToken(r)
	if err != nil {
		WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}

	snap := s.Bridge.Aggregator.Snapshot()
	resp := dashboardResponse{
		Meta:   snap.Meta,
		Totals: snap.Totals,
	}

	if vt == nil {
		resp.ByShelf = map[registry.Shelf]int64{}
		resp.BySeverity = map[registry.Severity]int64{}
		resp.ByEvent = map[string]int64{}
		resp.ShelfHealth = map[registry.Shelf]bridge.ShelfHealth{}
		resp.Hotspots = []interface{}{}
		resp.LiveFeed = []interface{}{}
		writeJSON(w, resp)
		return
	}

	resp.ByShelf = token.FilterShelfMap(vt, snap.ByShelf)
	resp.ShelfHealth = token.FilterShelfMap(vt, snap.ShelfHealth)
	resp.BySeverity = snap.BySeverity
	resp.ByEvent = snap.ByEvent
	resp.Hotspots = toAnySlice(s.Policy.FilterSignals(vt, snap.Hotspots))
	resp.LiveFeed = toAnySlice(s.Policy.FilterSignals(vt, snap.LiveFeed))
	meta := token.MetaFor(vt)
	resp.TokenMeta = &meta
	writeJSON(w, resp)
}

type shelfResponse struct {
	Shelf     registry.Shelf `json:"shelf"`
	Signals   []interface{}  `json:"signals"`
	TokenMeta *token.TokenMeta `json:"_token_meta,omitempty"`
}

// HandleShelf handles GET /api/v1/shelf/{shelf}. The path is matched
// by the caller's mux.HandleFunc("/api/v1/shelf/", ...) registration;
// shelf is the trailing path segment.
func (s *DashboardService) HandleShelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	shelf := registry.Shelf(strings.TrimPrefix(r.URL.Path, "/api/v1/shelf/"))
	if !shelf.Valid() {
		WriteBadRequest(w, "unknown shelf")
		return
	}

	vt, err := s.optionalToken(r)
	if err != nil {
		WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	if vt == nil {
		writeJSON(w, shelfResponse{Shelf: shelf, Signals: []interface{}{}})
		return
	}

	n := defaultShelfWindow
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil && parsed > 0 {
			n = parsed
		}
	}

	decoded := s.Bridge.Aggregator.ShelfSignals(shelf, n)
	filtered := s.Policy.FilterSignals(vt, decoded)
	meta := token.MetaFor(vt)
	writeJSON(w, shelfResponse{Shelf: shelf, Signals: toAnySlice(filtered), TokenMeta: &meta})
}

type registryResponse struct {
	Signals          []registry.SignalDef   `json:"signals"`
	ShelfDescription map[registry.Shelf]string `json:"shelf_description"`
}

// HandleRegistry handles GET /api/v1/registry. It carries no reader
// visibility filter — the registry is a closed, public schema, not a
// signal stream.
func (s *DashboardService) HandleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, registryResponse{
		Signals:          registry.All(),
		ShelfDescription: registry.ShelfDescription,
	})
}

// HandleRegistryCode handles GET /api/v1/registry/{code}, a single-code
// lookup mirroring the /api/v1/shelf/{shelf} path shape. Unfiltered,
// same as HandleRegistry — the registry is public schema.
func (s *DashboardService) HandleRegistryCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	code := strings.TrimPrefix(r.URL.Path, "/api/v1/registry/")
	def, ok := registry.Lookup(code)
	if !ok {
		WriteNotFound(w, "unknown signal code")
		return
	}
	writeJSON(w, def)
}

// optionalToken validates the bearer token if one is present and
// returns (nil, nil) when the request carries none — dashboard and
// shelf reads are allowed without a token, just filtered down to
// nothing.
func (s *DashboardService) optionalToken(r *http.Request) (*token.VirtueToken, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, nil
	}
	return s.Issuer.Validate(parts[1])
}

func toAnySlice[T any](in []T) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
