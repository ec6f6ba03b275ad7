package guard

import (
	"context"
	"time"

	"github.com/windi-project/windi-core/pkg/observability"
)

// tickChainWatcher re-walks the audit chain's hash links and persists
// whether it still verifies. A broken chain is the single highest
// severity condition Guard can observe, so it always alerts.
func (g *Guard) tickChainWatcher(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "guard.chain_watcher")
	defer span.End()

	now := time.Now()
	ok, reason := g.chain.Verify()

	observability.AddSpanEvent(ctx, "chain_watcher.result", observability.GuardProbeOperation("chain", ok)...)

	if g.db != nil {
		if dbErr := g.db.RecordChainCheck(ctx, ok, reason, now); dbErr != nil {
			g.log.Printf("chain watcher: persist failed: %v", dbErr)
		}
	}

	if !ok {
		g.alerts.Fire(ctx, Alert{
			Fingerprint: "chain:integrity",
			Severity:    "CRITICAL",
			Title:       "audit chain integrity check failed",
			Detail:      reason,
		})
	}
}
