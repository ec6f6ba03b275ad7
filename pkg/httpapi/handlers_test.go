package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/hold"
	"github.com/windi-project/windi-core/pkg/provenance"
	"github.com/windi-project/windi-core/pkg/token"
)

func strategicActor() *token.VirtueToken {
	return &token.VirtueToken{
		Sub:                 "operator-1",
		SLevel:              token.SLevelStrategic,
		KillSwitchAuthority: true,
	}
}

func TestSignalService_HandleIngest_RejectsNonPost(t *testing.T) {
	b, err := bridge.New(bridge.Options{})
	require.NoError(t, err)
	svc := &SignalService{Bridge: b}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil)
	rec := httptest.NewRecorder()
	svc.HandleIngest(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSignalService_HandleIngest_RejectsMalformedPacket(t *testing.T) {
	b, err := bridge.New(bridge.Options{})
	require.NoError(t, err)
	svc := &SignalService{Bridge: b}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry", bytes.NewBufferString("not a valid packet"))
	rec := httptest.NewRecorder()
	svc.HandleIngest(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["accepted"])
}

func TestSignalService_HandleIngestBatch_ReportsPerIndexErrors(t *testing.T) {
	b, err := bridge.New(bridge.Options{})
	require.NoError(t, err)
	svc := &SignalService{Bridge: b}

	body, _ := json.Marshal(batchRequest{Packets: []json.RawMessage{
		json.RawMessage(`"not a valid packet"`),
		json.RawMessage(`"also not valid"`),
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/batch", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	svc.HandleIngestBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 0, out.Accepted)
	require.Equal(t, 2, out.Rejected)
	require.Len(t, out.Errors, 2)
}

func TestHoldService_HandleActivate_RequiresPrincipal(t *testing.T) {
	svc := &HoldService{Registry: hold.NewRegistry(nil)}

	req := httptest.NewRequest(http.MethodPost, "/v1/holds/activate", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	svc.HandleActivate(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHoldService_HandleActivate_UnauthorizedActorIsRejected(t *testing.T) {
	svc := &HoldService{Registry: hold.NewRegistry(nil)}

	body, _ := json.Marshal(holdRequest{DomainID: "shelf-1", Reason: "incident", DurationMs: int64(time.Minute / time.Millisecond)})
	req := httptest.NewRequest(http.MethodPost, "/v1/holds/activate", bytes.NewBuffer(body))
	req = req.WithContext(WithPrincipal(req.Context(), &token.VirtueToken{Sub: "tactical-1", SLevel: token.SLevelTactical}))
	rec := httptest.NewRecorder()
	svc.HandleActivate(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHoldService_HandleActivate_AcceptsAuthorizedActor(t *testing.T) {
	svc := &HoldService{Registry: hold.NewRegistry(nil)}

	body, _ := json.Marshal(holdRequest{DomainID: "shelf-1", Reason: "incident", DurationMs: int64(time.Minute / time.Millisecond)})
	req := httptest.NewRequest(http.MethodPost, "/v1/holds/activate", bytes.NewBuffer(body))
	req = req.WithContext(WithPrincipal(req.Context(), strategicActor()))
	rec := httptest.NewRecorder()
	svc.HandleActivate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var h hold.Hold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, "shelf-1", h.DomainID)
	require.Equal(t, hold.StatusActive, h.Status)
}

func TestHoldService_HandleRelease_ReleasesActiveHold(t *testing.T) {
	registry := hold.NewRegistry(nil)
	svc := &HoldService{Registry: registry}
	actor := strategicActor()

	h, err := registry.Activate(context.Background(), actor, "shelf-1", "incident", time.Minute)
	require.NoError(t, err)

	body, _ := json.Marshal(holdReleaseRequest{HoldID: h.ID, Reason: "resolved"})
	req := httptest.NewRequest(http.MethodPost, "/v1/holds/release", bytes.NewBuffer(body))
	req = req.WithContext(WithPrincipal(req.Context(), actor))
	rec := httptest.NewRecorder()
	svc.HandleRelease(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var released hold.Hold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &released))
	require.Equal(t, hold.StatusReleased, released.Status)
}

func TestProvenanceService_HandleVerify_RequiresSubmissionID(t *testing.T) {
	dir := t.TempDir()
	store, err := provenance.NewStore(dir, nil)
	require.NoError(t, err)
	svc := &ProvenanceService{Store: store}

	req := httptest.NewRequest(http.MethodGet, "/v1/provenance/verify", nil)
	rec := httptest.NewRecorder()
	svc.HandleVerify(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvenanceService_HandleVerify_ReturnsIntactVerdict(t *testing.T) {
	dir := t.TempDir()
	store, err := provenance.NewStore(dir, nil)
	require.NoError(t, err)
	svc := &ProvenanceService{Store: store}

	in := provenance.BuildInput{
		SubmissionID:  "TEST-HIGH-001",
		Level:         provenance.LevelHigh,
		PolicyVersion: "2.2.0",
		Decision: provenance.DecisionPayload{
			DomainID:  "shelf-1",
			Decision:  "APPROVE",
			DecidedBy: "operator-1",
			DecidedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		SystemIdentity: provenance.DefaultSystemIdentity("test-server", "DE"),
	}
	rec, err := provenance.Build(in, time.Now())
	require.NoError(t, err)
	persisted, err := store.Put(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, persisted)

	req := httptest.NewRequest(http.MethodGet, "/v1/provenance/verify?submission_id="+rec.SubmissionID, nil)
	recorder := httptest.NewRecorder()
	svc.HandleVerify(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	require.Equal(t, string(provenance.VerdictValid), out["verdict"])
}

func TestProvenanceService_HandleVerify_UnknownSubmissionID(t *testing.T) {
	dir := t.TempDir()
	store, err := provenance.NewStore(dir, nil)
	require.NoError(t, err)
	svc := &ProvenanceService{Store: store}

	req := httptest.NewRequest(http.MethodGet, "/v1/provenance/verify?submission_id=NOPE-999", nil)
	recorder := httptest.NewRecorder()
	svc.HandleVerify(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	require.Equal(t, string(provenance.VerdictUnknown), out["verdict"])
}
