//go:build property
// +build property

package bridge

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property tests for the anti-replay and weight-bound boundary behaviors.
// Run with: go test -tags property ./pkg/bridge/...

func TestWeightBoundary_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("weight in [0,100] is accepted", prop.ForAll(
		func(weight int) bool {
			b, err := New(Options{})
			if err != nil {
				return false
			}
			b.RegisterKey("k1", testKey())

			pkt := basePacket()
			pkt.Payload.Weight = weight
			signPacket(t, pkt, testKey())

			ok, _ := b.Ingest(marshal(t, pkt))
			return ok
		},
		gen.IntRange(0, 100),
	))

	properties.Property("weight outside [0,100] is rejected with SCHEMA:INVALID_WEIGHT", prop.ForAll(
		func(weight int) bool {
			b, err := New(Options{})
			if err != nil {
				return false
			}
			b.RegisterKey("k1", testKey())

			pkt := basePacket()
			pkt.Payload.Weight = weight
			signPacket(t, pkt, testKey())

			ok, msg := b.Ingest(marshal(t, pkt))
			return !ok && strings.HasPrefix(msg, "SCHEMA:INVALID_WEIGHT")
		},
		gen.OneGenOf(gen.IntRange(-1000, -1), gen.IntRange(101, 1000)),
	))

	properties.TestingRun(t)
}

func TestNonceWindowEviction_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("the (capacity+1)-th nonce evicts the first, which becomes re-admissible", prop.ForAll(
		func(capacity int, extra int) bool {
			w := newNonceWindow(capacity)

			nonces := make([]string, capacity)
			for i := range nonces {
				nonces[i] = nonceLabel(i)
				w.add(nonces[i])
			}
			first := nonces[0]
			if !w.has(first) {
				return false
			}

			for i := 0; i < extra; i++ {
				w.add(nonceLabel(capacity + i))
			}

			if extra == 0 {
				return w.has(first)
			}
			if extra < capacity {
				// the window is already full, so the first further
				// insertion evicts its oldest entry, first.
				return !w.has(first)
			}
			return !w.has(first)
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func nonceLabel(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	if i < len(alphabet) {
		return string(alphabet[i])
	}
	return string(alphabet[i%len(alphabet)]) + string(alphabet[(i/len(alphabet))%len(alphabet)])
}
