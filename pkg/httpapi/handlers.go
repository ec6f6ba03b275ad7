package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/hold"
	"github.com/windi-project/windi-core/pkg/provenance"
	"github.com/windi-project/windi-core/pkg/windierr"
)

const maxBodyBytes = 1 << 20 // 1MB

// SignalService exposes the signal ingestion endpoint.
type SignalService struct {
	Bridge *bridge.Bridge
}

// HandleIngest handles POST /api/v1/telemetry. It is listed as a
// public path in the auth middleware — signal packets carry their own
// HMAC signature, verified inside Bridge.Ingest.
func (s *SignalService) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "request body too large or unreadable")
		return
	}

	ok, detail := s.Bridge.Ingest(raw)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"accepted": false, "message": detail})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"accepted": true, "message": detail})
}

type batchRequest struct {
	Packets []json.RawMessage `json:"packets"`
}

type batchResponse struct {
	Accepted int                  `json:"accepted"`
	Rejected int                  `json:"rejected"`
	Errors   []bridge.BatchError  `json:"errors"`
}

// HandleIngestBatch handles POST /api/v1/telemetry/batch, matching
// Bridge.IngestBatch's per-index accept/reject accounting.
func (s *SignalService) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	var req batchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	packets := make([][]byte, len(req.Packets))
	for i, p := range req.Packets {
		packets[i] = []byte(p)
	}

	accepted, rejected, errs := s.Bridge.IngestBatch(packets)
	if errs == nil {
		errs = []bridge.BatchError{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batchResponse{Accepted: accepted, Rejected: rejected, Errors: errs})
}

// HoldService exposes Governance Hold activation and release.
type HoldService struct {
	Registry *hold.Registry
}

type holdRequest struct {
	DomainID   string `json:"domain_id"`
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms"`
}

// HandleActivate handles POST /v1/holds/activate.
func (s *HoldService) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	principal := Principal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, "missing principal")
		return
	}

	var req holdRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	h, err := s.Registry.Activate(r.Context(), principal, req.DomainID, req.Reason, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		writeHoldErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

type holdReleaseRequest struct {
	HoldID string `json:"hold_id"`
	Reason string `json:"reason"`
}

// HandleRelease handles POST /v1/holds/release.
func (s *HoldService) HandleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	principal := Principal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, "missing principal")
		return
	}

	var req holdReleaseRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	h, err := s.Registry.Release(r.Context(), principal, req.HoldID, req.Reason)
	if err != nil {
		writeHoldErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

func writeHoldErr(w http.ResponseWriter, r *http.Request, err error) {
	if we, ok := err.(*windierr.Error); ok {
		WriteWindiError(w, r, we)
		return
	}
	WriteInternal(w, err)
}

// ProvenanceService exposes provenance record retrieval and
// verification.
type ProvenanceService struct {
	Store *provenance.Store
}

// HandleVerify handles GET /v1/provenance/verify via the
// submission_id query parameter. An optional JSON body carrying a
// decision_payload (provenance.StructuralPayload) re-verifies the
// caller's own copy of the document against the stored structural
// hash rather than relying on the record's self-consistency alone.
func (s *ProvenanceService) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	submissionID := r.URL.Query().Get("submission_id")
	if submissionID == "" {
		WriteBadRequest(w, "missing submission_id")
		return
	}

	var payload *provenance.StructuralPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		var p provenance.StructuralPayload
		if err := json.Unmarshal(body, &p); err != nil {
			WriteBadRequest(w, "invalid decision_payload body")
			return
		}
		payload = &p
	}

	verdict, reason, err := provenance.VerifyBySubmissionID(s.Store, submissionID, payload)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"submission_id": submissionID,
		"verdict":       verdict,
		"reason":        reason,
	})
}

