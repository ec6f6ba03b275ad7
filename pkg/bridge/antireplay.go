package bridge

import (
	"fmt"
	"time"

	"github.com/windi-project/windi-core/pkg/windierr"
)

// Anti-replay tunables per spec.md §4.B / §8.
const (
	// MaxDriftMsProd is the production clock-drift tolerance: 5 minutes.
	MaxDriftMsProd int64 = 5 * 60 * 1000
	// MaxDriftMsSimulation is the simulation-mode clock-drift
	// tolerance: one year, explicit and client-scoped per the Open
	// Question in spec.md §9.
	MaxDriftMsSimulation int64 = 365 * 24 * 60 * 60 * 1000
	// Grace is the tolerance window for small batch reordering.
	Grace int64 = 50
	// NonceWindowSize (W) bounds the per-client nonce FIFO.
	NonceWindowSize = 10000
)

// checkReplay runs the anti-replay step for hdr against cs, updating
// cs on acceptance. now is epoch-ms, injectable for tests.
func checkReplay(cs *ClientState, cid string, ts, seq int64, nonce string, now int64) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	maxDrift := MaxDriftMsProd
	if cs.SimulationMode {
		maxDrift = MaxDriftMsSimulation
	}

	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > maxDrift {
		return windierr.Replay("TS_DRIFT", fmt.Sprintf("drift=%dms max=%dms", drift, maxDrift))
	}

	if cs.nonces.has(nonce) {
		return windierr.Replay("NONCE_REUSE", fmt.Sprintf("nonce=%s", nonce))
	}

	if seq <= cs.LastSeq-Grace {
		return windierr.Replay("SEQ_REGRESSION", fmt.Sprintf("seq=%d last_seq=%d grace=%d", seq, cs.LastSeq, Grace))
	}

	if seq > cs.LastSeq {
		cs.LastSeq = seq
	}
	cs.nonces.add(nonce)
	return nil
}

// nowMillis is a package-level clock indirection for tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
