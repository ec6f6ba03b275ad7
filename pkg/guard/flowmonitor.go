package guard

import (
	"context"
	"fmt"

	"github.com/windi-project/windi-core/pkg/observability"
)

// flowCriticalStatus mirrors the "critical" status bridge.Aggregator
// computes per shelf once its average signal weight runs hot.
const flowCriticalStatus = "critical"

// tickFlowMonitor watches the signal bridge's live aggregate for
// shelves running hot and fires alerts for any in critical status.
func (g *Guard) tickFlowMonitor(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "guard.flow_monitor")
	defer span.End()

	snap := g.aggregator.Snapshot()
	observability.AddSpanEvent(ctx, "flow_monitor.snapshot", observability.GuardProbeOperation("flow", true)...)

	for shelf, health := range snap.ShelfHealth {
		if health.Status != flowCriticalStatus {
			continue
		}
		g.alerts.Fire(ctx, Alert{
			Fingerprint: "flow:" + string(shelf),
			Severity:    "CRITICAL",
			Title:       fmt.Sprintf("shelf %s signal flow critical", shelf),
			Detail:      fmt.Sprintf("%d signals, avg weight %.1f", health.Count, health.AvgWeight),
		})
	}
}
