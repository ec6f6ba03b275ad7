package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/database"
	"github.com/windi-project/windi-core/pkg/observability"
)

// minUptimeTarget is the uptime floor the ReportBuilder checks each
// generated report against.
const minUptimeTarget = 0.95

const uptimeOperation = "guard.health_probe"

// Report summarizes Guard's recent operating window for dashboards
// and external status pages. MeetsTarget ("verified") holds only when
// all three of its inputs do: no audit-chain breaks, every recently
// scanned ISP profile valid, and uptime at or above minUptimeTarget.
// The uptime input is skipped when no health-check history is
// recorded, and with no database configured MeetsTarget stays true.
type Report struct {
	GeneratedAt     time.Time `json:"generated_at"`
	UptimeRatio     float64   `json:"uptime_ratio"`
	ChainBreaks     int       `json:"chain_breaks"`
	ISPsValid       bool      `json:"isps_valid"`
	MeetsTarget     bool      `json:"meets_target"`
	SignalsReceived int64     `json:"signals_received"`
	SignalsRejected int64     `json:"signals_rejected"`
}

// ReportBuilder periodically snapshots Guard's health history and the
// signal bridge's traffic totals into a Report.
type ReportBuilder struct {
	db         *database.Client
	aggregator *bridge.Aggregator
	tracker    *observability.SLOTracker
}

// NewReportBuilder constructs a ReportBuilder and registers the
// uptime SLO target it evaluates against.
func NewReportBuilder(db *database.Client, aggregator *bridge.Aggregator) *ReportBuilder {
	tracker := observability.NewSLOTracker()
	tracker.SetTarget(&observability.SLOTarget{
		SLOID:       "guard-uptime",
		Name:        "Guard health probe uptime",
		Operation:   uptimeOperation,
		SuccessRate: minUptimeTarget,
		WindowHours: 24,
	})
	return &ReportBuilder{db: db, aggregator: aggregator, tracker: tracker}
}

func (g *Guard) tickReportBuilder(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "guard.report_builder")
	defer span.End()

	now := time.Now()
	report := Report{GeneratedAt: now, ISPsValid: true, MeetsTarget: true}

	if g.aggregator != nil {
		snap := g.aggregator.Snapshot()
		report.SignalsReceived = snap.Totals.Received
		report.SignalsRejected = snap.Totals.Rejected
	}

	if g.db != nil {
		checks, err := g.db.RecentHealthChecks(ctx, 500)
		haveUptime := err == nil && len(checks) > 0
		if haveUptime {
			var ok int
			for _, c := range checks {
				if c.OK {
					ok++
				}
				g.reportBuilder.tracker.Record(observability.SLOObservation{
					Operation: uptimeOperation,
					Success:   c.OK,
					Timestamp: c.CheckedAt,
				})
			}
			report.UptimeRatio = float64(ok) / float64(len(checks))
		}

		if chainChecks, err := g.db.RecentChainChecks(ctx, 500); err == nil {
			for _, c := range chainChecks {
				if !c.OK {
					report.ChainBreaks++
				}
			}
		}

		if ispScans, err := g.db.RecentISPScans(ctx, 500); err == nil {
			for _, s := range ispScans {
				if !s.Valid {
					report.ISPsValid = false
					break
				}
			}
		}

		// verified iff chain_breaks=0 AND all ISPs valid AND uptime>=95%
		report.MeetsTarget = report.ChainBreaks == 0 && report.ISPsValid
		if haveUptime {
			report.MeetsTarget = report.MeetsTarget && report.UptimeRatio >= minUptimeTarget
		}
	}

	observability.AddSpanEvent(ctx, "report_builder.generated", observability.GuardProbeOperation("report", report.MeetsTarget)...)

	if g.db != nil {
		if err := g.db.RecordReport(ctx, report, now); err != nil {
			g.log.Printf("report builder: persist failed: %v", err)
		}
	}

	if !report.MeetsTarget {
		g.alerts.Fire(ctx, Alert{
			Fingerprint: "report:uptime",
			Severity:    "WARNING",
			Title:       "guard report below target",
			Detail:      fmt.Sprintf("chain_breaks=%d isps_valid=%t uptime_ratio=%.3f", report.ChainBreaks, report.ISPsValid, report.UptimeRatio),
		})
	}
}
