package provenance

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSystemIdentity() SystemIdentity {
	return DefaultSystemIdentity("test-server-01", "DE")
}

func sampleInput(submissionID string, level GovernanceLevel) BuildInput {
	return BuildInput{
		SubmissionID:  submissionID,
		Level:         level,
		PolicyVersion: "2.2.0",
		ISPProfile:    "bafin",
		Organization:  "Deutsche Bank",
		Decision: DecisionPayload{
			DomainID:  "domain-1",
			Decision:  "APPROVE",
			DecidedBy: "operator-a",
			DecidedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		SystemIdentity: testSystemIdentity(),
	}
}

func TestStructuralHash_Deterministic(t *testing.T) {
	in := sampleInput("TEST-HIGH-001", LevelHigh)
	payload := StructuralPayload{
		SubmissionID: in.SubmissionID, GovernanceLevel: in.Level, PolicyVersion: in.PolicyVersion,
		ISPProfile: in.ISPProfile, Organization: in.Organization, Decision: in.Decision,
	}

	h1, err := StructuralHash(payload)
	require.NoError(t, err)
	h2, err := StructuralHash(payload)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestBuild_RejectsInvalidGovernanceLevel(t *testing.T) {
	in := sampleInput("TEST-001", "BOGUS")
	_, err := Build(in, time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SCHEMA:INVALID_GOVERNANCE_LEVEL")
}

func TestBuild_ProvenanceIDIsDeterministicAndStructuralHashMatchesPayload(t *testing.T) {
	in := sampleInput("TEST-HIGH-001", LevelHigh)

	rec1, err := Build(in, time.Now())
	require.NoError(t, err)
	rec2, err := Build(in, time.Now())
	require.NoError(t, err)

	require.NotEmpty(t, rec1.ProvenanceID)
	require.Equal(t, rec1.ProvenanceID, rec2.ProvenanceID, "same submission+decision must derive the same provenance_id")
	require.Equal(t, rec1.CryptographicProof.StructuralHash, rec2.CryptographicProof.StructuralHash)

	wantHash, err := StructuralHash(rec1.Payload)
	require.NoError(t, err)
	require.Equal(t, wantHash, rec1.CryptographicProof.StructuralHash)
}

func TestBuild_HashChainLinksStructuralAndProvenanceHash(t *testing.T) {
	rec, err := Build(sampleInput("TEST-HIGH-002", LevelHigh), time.Now())
	require.NoError(t, err)

	want := rec.CryptographicProof.StructuralHash[:16] + "→" + rec.CryptographicProof.ProvenanceHash[:16]
	require.Equal(t, want, rec.CryptographicProof.HashChain)
}

func TestGovernanceLevelOrdering(t *testing.T) {
	require.True(t, LevelLow.Less(LevelMedium))
	require.True(t, LevelMedium.Less(LevelHigh))
	require.False(t, LevelHigh.Less(LevelLow))
}

func TestComputeResilienceScore_LevelOrdering(t *testing.T) {
	for _, f := range []ResilienceFeatures{
		{},
		{HasContentHash: true},
		{HasIdentityGovernance: true},
		{HasContentHash: true, HasIdentityGovernance: true},
	} {
		high := ComputeResilienceScore(LevelHigh, f)
		medium := ComputeResilienceScore(LevelMedium, f)
		low := ComputeResilienceScore(LevelLow, f)
		require.Greater(t, high, medium, "features=%+v", f)
		require.Greater(t, medium, low, "features=%+v", f)
		require.LessOrEqual(t, high, 100)
		require.GreaterOrEqual(t, low, 0)
	}
}

func TestResilienceRating_Thresholds(t *testing.T) {
	require.Equal(t, "MAXIMUM", ResilienceRating(100))
	require.Equal(t, "HIGH", ResilienceRating(70))
	require.Equal(t, "MODERATE", ResilienceRating(40))
	require.Equal(t, "LOW", ResilienceRating(10))
}

func TestVerify_ValidRecord(t *testing.T) {
	rec, err := Build(sampleInput("TEST-HIGH-003", LevelHigh), time.Now())
	require.NoError(t, err)

	verdict, reason, err := Verify(rec, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictValid, verdict)
	require.NotEmpty(t, reason)
}

func TestVerify_SelfInconsistentRecordIsTampered(t *testing.T) {
	rec, err := Build(sampleInput("TEST-MED-001", LevelMedium), time.Now())
	require.NoError(t, err)

	rec.Payload.Decision.Decision = "REJECT" // mutate after structural_hash was stamped

	verdict, reason, err := Verify(rec, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictTampered, verdict)
	require.NotEmpty(t, reason)
}

func TestVerify_ExternalPayloadMismatchIsTamperedWithStructuralHashMismatchReason(t *testing.T) {
	in := sampleInput("TEST-HIGH-001", LevelHigh)
	rec, err := Build(in, time.Now())
	require.NoError(t, err)

	tampered := rec.Payload
	tampered.Organization = "Someone Else GmbH"

	verdict, reason, err := Verify(rec, &tampered)
	require.NoError(t, err)
	require.Equal(t, VerdictTampered, verdict)
	require.Equal(t, "structural_hash_mismatch", reason)
}

func TestVerify_ExternalPayloadMatchIsValid(t *testing.T) {
	in := sampleInput("TEST-HIGH-001", LevelHigh)
	rec, err := Build(in, time.Now())
	require.NoError(t, err)

	verdict, _, err := Verify(rec, &rec.Payload)
	require.NoError(t, err)
	require.Equal(t, VerdictValid, verdict)
}

func TestVerify_UnknownWhenRecordMissing(t *testing.T) {
	verdict, reason, err := Verify(nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictUnknown, verdict)
	require.NotEmpty(t, reason)
}

func TestStore_PutAndGet_HighAlwaysPersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	rec, err := Build(sampleInput("TEST-HIGH-001", LevelHigh), time.Now())
	require.NoError(t, err)

	persisted, err := store.Put(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, persisted)

	loaded, err := store.Get(rec.SubmissionID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, rec.CryptographicProof.StructuralHash, loaded.CryptographicProof.StructuralHash)
}

func TestStore_Put_MediumWithoutSubmissionIDIsNotPersisted(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	in := sampleInput("", LevelMedium)
	rec, err := Build(in, time.Now())
	require.NoError(t, err)

	persisted, err := store.Put(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, persisted)
}

func TestStore_Put_LowRequiresForcePrefix(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	unforced, err := Build(sampleInput("TEST-LOW-001", LevelLow), time.Now())
	require.NoError(t, err)
	persisted, err := store.Put(context.Background(), unforced)
	require.NoError(t, err)
	require.False(t, persisted)

	forced, err := Build(sampleInput("FORCE-TEST-LOW-001", LevelLow), time.Now())
	require.NoError(t, err)
	persisted, err = store.Put(context.Background(), forced)
	require.NoError(t, err)
	require.True(t, persisted)

	loaded, err := store.Get("FORCE-TEST-LOW-001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
}

func TestStore_GetMissingReturnsNilNotError(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	rec, err := store.Get("does-not-exist")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestVerifyBySubmissionID_ScenarioSixProvenanceTamper(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	in := sampleInput("TEST-HIGH-001", LevelHigh)
	rec, err := Build(in, time.Now())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), rec)
	require.NoError(t, err)

	verdict, _, err := VerifyBySubmissionID(store, "TEST-HIGH-001", &rec.Payload)
	require.NoError(t, err)
	require.Equal(t, VerdictValid, verdict)

	tampered := rec.Payload
	tampered.Organization = "Changed Org"
	verdict, reason, err := VerifyBySubmissionID(store, "TEST-HIGH-001", &tampered)
	require.NoError(t, err)
	require.Equal(t, VerdictTampered, verdict)
	require.Equal(t, "structural_hash_mismatch", reason)

	verdict, _, err = VerifyBySubmissionID(store, "NOPE-999", nil)
	require.NoError(t, err)
	require.Equal(t, VerdictUnknown, verdict)
}

func TestVerifyByHash_FindsBySubmissionsStructuralHashPrefix(t *testing.T) {
	dir, err := os.MkdirTemp("", "provenance-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	rec, err := Build(sampleInput("TEST-HIGH-001", LevelHigh), time.Now())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), rec)
	require.NoError(t, err)

	verdict, _, err := VerifyByHash(store, rec.CryptographicProof.StructuralHash[:8])
	require.NoError(t, err)
	require.Equal(t, VerdictValid, verdict)

	verdict, _, err = VerifyByHash(store, "deadbeef00000000")
	require.NoError(t, err)
	require.Equal(t, VerdictUnknown, verdict)
}
