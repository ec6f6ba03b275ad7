package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/canonicalize"
	"github.com/windi-project/windi-core/pkg/signal"
)

func testKey() []byte {
	return make([]byte, 32) // 32 zero bytes, per spec.md §8 scenario 1
}

func signPacket(t *testing.T, pkt *signal.Packet, key []byte) {
	t.Helper()
	canon, err := canonicalize.JCS(pkt.Signed())
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write(canon)
	pkt.Auth.Sig = base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func basePacket() *signal.Packet {
	return &signal.Packet{
		Header: signal.Header{V: "1.0.0", Kid: "k1", Cid: "client-a", Ts: nowMillis(), Nonce: "N1", Seq: 1},
		Payload: signal.Payload{
			Shelf: "S1", Code: "ID-CONC", Weight: 70, Event: "APPROVED",
			DomainHash: "dh", DocFingerprint: "df",
		},
	}
}

func marshal(t *testing.T, pkt *signal.Packet) []byte {
	t.Helper()
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

func TestIngest_HappyPath(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	pkt := basePacket()
	signPacket(t, pkt, testKey())

	ok, msg := b.Ingest(marshal(t, pkt))
	require.True(t, ok, msg)

	snap := b.Aggregator.Snapshot()
	require.EqualValues(t, 1, snap.Totals.Received)
	require.EqualValues(t, 1, snap.ByShelf["S1"])
	require.Equal(t, "warning", snap.ShelfHealth["S1"].Status)
}

func TestIngest_ReplayRejection(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	pkt := basePacket()
	signPacket(t, pkt, testKey())
	raw := marshal(t, pkt)

	ok, _ := b.Ingest(raw)
	require.True(t, ok)

	ok, msg := b.Ingest(raw)
	require.False(t, ok)
	require.True(t, strings.HasPrefix(msg, "REPLAY:NONCE_REUSE"), msg)

	snap := b.Aggregator.Snapshot()
	require.EqualValues(t, 1, snap.Totals.Rejected)
}

func TestIngest_SequenceRegression(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	p1 := basePacket()
	p1.Header.Seq = 2
	p1.Header.Nonce = "N1"
	signPacket(t, p1, testKey())
	ok, _ := b.Ingest(marshal(t, p1))
	require.True(t, ok)

	p2 := basePacket()
	p2.Header.Seq = -100
	p2.Header.Nonce = "N2"
	signPacket(t, p2, testKey())
	ok, msg := b.Ingest(marshal(t, p2))
	require.False(t, ok)
	require.True(t, strings.HasPrefix(msg, "REPLAY:SEQ_REGRESSION"), msg)
}

func TestIngest_UnknownKey(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)

	pkt := basePacket()
	signPacket(t, pkt, testKey())

	ok, msg := b.Ingest(marshal(t, pkt))
	require.False(t, ok)
	require.True(t, strings.HasPrefix(msg, "AUTH:UNKNOWN_KEY"), msg)
}

func TestIngest_BadSignature(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	pkt := basePacket()
	signPacket(t, pkt, []byte("wrong-key-wrong-key-wrong-key-00"))

	ok, msg := b.Ingest(marshal(t, pkt))
	require.False(t, ok)
	require.True(t, strings.HasPrefix(msg, "AUTH:HMAC_INVALID"), msg)
}

func TestIngest_InvalidWeight(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	pkt := basePacket()
	pkt.Payload.Weight = 101
	signPacket(t, pkt, testKey())

	ok, msg := b.Ingest(marshal(t, pkt))
	require.False(t, ok)
	require.True(t, strings.HasPrefix(msg, "SCHEMA:"), msg)
}

func TestNonceWindow_EvictsOldest(t *testing.T) {
	w := newNonceWindow(3)
	w.add("a")
	w.add("b")
	w.add("c")
	require.True(t, w.has("a"))

	w.add("d") // evicts "a"
	require.False(t, w.has("a"))
	require.True(t, w.has("d"))

	w.add("a") // "a" is re-admissible
	require.True(t, w.has("a"))
}
