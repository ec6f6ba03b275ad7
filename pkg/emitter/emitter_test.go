package emitter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/emitter"
	"github.com/windi-project/windi-core/pkg/registry"
)

func testConfig() emitter.Config {
	return emitter.Config{
		ClientID:   "client-alpha",
		KeyID:      "kid-1",
		ClientSalt: []byte("salt"),
		HMACKey:    []byte("0123456789abcdef0123456789abcdef"),
	}
}

func testSpec() emitter.EventSpec {
	return emitter.EventSpec{
		Shelf:    registry.ShelfGovernanceDensity,
		Code:     "GD-GAP",
		Weight:   40,
		DomainID: "finance-review",
		Event:    "REVIEWED",
	}
}

func TestNew_RequiresClientIDAndKeyID(t *testing.T) {
	_, err := emitter.New(emitter.Config{KeyID: "kid-1", HMACKey: []byte("k")})
	require.Error(t, err)

	_, err = emitter.New(emitter.Config{ClientID: "client-alpha", HMACKey: []byte("k")})
	require.Error(t, err)
}

func TestNew_RequiresKeyMaterial(t *testing.T) {
	_, err := emitter.New(emitter.Config{ClientID: "client-alpha", KeyID: "kid-1"})
	require.Error(t, err)
}

func TestNew_DerivesKeyFromIssuerSecret(t *testing.T) {
	cfg := emitter.Config{ClientID: "client-alpha", KeyID: "kid-1", IssuerSecret: []byte("issuer-master-secret")}
	e, err := emitter.New(cfg)
	require.NoError(t, err)

	pkt, err := e.Emit(testSpec())
	require.NoError(t, err)
	require.NotEmpty(t, pkt.Auth.Sig)
}

func TestEmit_RejectsUnknownCodeShelfEvent(t *testing.T) {
	e, err := emitter.New(testConfig())
	require.NoError(t, err)

	_, err = e.Emit(emitter.EventSpec{Shelf: "S9", Code: "GD-GAP", Event: "REVIEWED"})
	require.Error(t, err)

	_, err = e.Emit(emitter.EventSpec{Shelf: registry.ShelfGovernanceDensity, Code: "NOPE", Event: "REVIEWED"})
	require.Error(t, err)

	_, err = e.Emit(emitter.EventSpec{Shelf: registry.ShelfGovernanceDensity, Code: "GD-GAP", Event: "NOT_AN_EVENT"})
	require.Error(t, err)

	_, err = e.Emit(emitter.EventSpec{Shelf: registry.ShelfGovernanceDensity, Code: "GD-GAP", Event: "REVIEWED", Weight: 101})
	require.Error(t, err)
}

func TestEmit_MonotonicSeq(t *testing.T) {
	e, err := emitter.New(testConfig())
	require.NoError(t, err)

	first, err := e.Emit(testSpec())
	require.NoError(t, err)
	second, err := e.Emit(testSpec())
	require.NoError(t, err)

	require.Equal(t, int64(1), first.Header.Seq)
	require.Equal(t, int64(2), second.Header.Seq)
	require.NotEqual(t, first.Header.Nonce, second.Header.Nonce)
}

func TestEmitBatch_StopsAtFirstError(t *testing.T) {
	e, err := emitter.New(testConfig())
	require.NoError(t, err)

	specs := []emitter.EventSpec{testSpec(), {Shelf: "BAD"}, testSpec()}
	out, err := e.EmitBatch(specs)
	require.Error(t, err)
	require.Len(t, out, 1)
}

// TestEmit_AcceptedByBridge confirms a packet the Emitter builds and
// signs is exactly what the Bridge's ingestion pipeline expects: same
// HMAC key registered on both sides, the packet round-trips through
// JSON and is accepted.
func TestEmit_AcceptedByBridge(t *testing.T) {
	cfg := testConfig()
	e, err := emitter.New(cfg)
	require.NoError(t, err)

	b, err := bridge.New(bridge.Options{})
	require.NoError(t, err)
	b.RegisterKey(cfg.KeyID, cfg.HMACKey)

	pkt, err := e.Emit(testSpec())
	require.NoError(t, err)

	raw, err := json.Marshal(pkt)
	require.NoError(t, err)

	ok, msg := b.Ingest(raw)
	require.True(t, ok, msg)
}
