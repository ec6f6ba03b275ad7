package bridge

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/guardian"
)

// fixedClock is a guardian.Clock that never advances, letting a handful
// of Ingest calls accumulate effect-rate within the same window.
type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func tightFloodPolicy() guardian.EscalationPolicy {
	return guardian.EscalationPolicy{
		WindowSize: time.Second,
		Thresholds: []guardian.EscalationThreshold{
			{Level: guardian.ResponseThrottle, MaxRate: 1, SustainedFor: 0, CooldownAfter: 1000 * time.Second},
			{Level: guardian.ResponseInterrupt, MaxRate: 2, SustainedFor: 0, CooldownAfter: 1000 * time.Second},
		},
	}
}

func TestIngest_FloodEscalationRejectsBurst(t *testing.T) {
	b, err := New(Options{FloodPolicy: tightFloodPolicy(), FloodClock: fixedClock{t: time.Unix(0, 0)}})
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	var lastMsg string
	var lastOK bool
	for i := int64(1); i <= 3; i++ {
		pkt := basePacket()
		pkt.Header.Seq = i
		pkt.Header.Nonce = fmt.Sprintf("flood-%d", i)
		signPacket(t, pkt, testKey())
		lastOK, lastMsg = b.Ingest(marshal(t, pkt))
	}

	require.False(t, lastOK, "third packet in the burst should be flood-rejected")
	require.True(t, strings.HasPrefix(lastMsg, "FLOOD:"), "got %q", lastMsg)
}

func TestIngest_FloodEscalationAllowsSteadyTraffic(t *testing.T) {
	b, err := New(Options{}) // default policy, real clock: two packets never trip it
	require.NoError(t, err)
	b.RegisterKey("k1", testKey())

	for i := int64(1); i <= 2; i++ {
		pkt := basePacket()
		pkt.Header.Seq = i
		pkt.Header.Nonce = fmt.Sprintf("flood-%d", i)
		signPacket(t, pkt, testKey())
		ok, msg := b.Ingest(marshal(t, pkt))
		require.True(t, ok, msg)
	}
}
