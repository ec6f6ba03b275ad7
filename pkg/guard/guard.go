// Package guard implements the Governance Guard: a daemon of six
// sub-modules — HealthProbe, ChainWatcher, ISPScanner, FlowMonitor,
// AlertEngine, and ReportBuilder. Five of them poll on their own
// ticker (see Intervals) and report through the shared AlertEngine,
// which has no ticker of its own.
//
// The per-module-ticker-plus-shared-state shape follows
// pkg/guardian.TemporalGuardian's escalation ladder, generalized from
// a single rate monitor to five independently-scheduled probes.
package guard

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/windi-project/windi-core/pkg/auditchain"
	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/database"
	"github.com/windi-project/windi-core/pkg/observability"
)

var tracer = otel.Tracer("windi-guard")

// Intervals configures each sub-module's polling period.
type Intervals struct {
	HealthProbe   time.Duration
	ChainWatcher  time.Duration
	ISPScanner    time.Duration
	FlowMonitor   time.Duration
	ReportBuilder time.Duration
}

// DefaultIntervals returns the production polling cadence.
func DefaultIntervals() Intervals {
	return Intervals{
		HealthProbe:   15 * time.Second,
		ChainWatcher:  1 * time.Minute,
		ISPScanner:    5 * time.Minute,
		FlowMonitor:   10 * time.Second,
		ReportBuilder: 7 * 24 * time.Hour,
	}
}

// Guard orchestrates the six sub-modules.
type Guard struct {
	db         *database.Client
	chain      *auditchain.Chain
	aggregator *bridge.Aggregator
	alerts     *AlertEngine
	intervals  Intervals
	log        *log.Logger

	probes        []HealthCheckFunc
	ispSource     ISPProfileSource
	ispFetcher    ISPFetcher
	ispBaseline   ISPBaselineFunc
	reportBuilder *ReportBuilder
	timeline      *observability.AuditTimeline

	healthMu     sync.Mutex
	healthStates map[string]*healthState

	wg sync.WaitGroup
}

// Timeline returns Guard's unified audit timeline, queryable across
// every sub-module's probe and alert history.
func (g *Guard) Timeline() *observability.AuditTimeline { return g.timeline }

// Options configures a new Guard.
type Options struct {
	DB          *database.Client
	Chain       *auditchain.Chain
	Aggregator  *bridge.Aggregator
	Alerts      *AlertEngine
	Intervals   Intervals
	Probes           []HealthCheckFunc
	ISPProfileSource ISPProfileSource
	ISPFetcher       ISPFetcher
	ISPBaseline      ISPBaselineFunc
}

// New constructs a Guard from opts, filling unset fields with defaults.
func New(opts Options) *Guard {
	intervals := opts.Intervals
	if intervals == (Intervals{}) {
		intervals = DefaultIntervals()
	}
	alerts := opts.Alerts
	if alerts == nil {
		alerts = NewAlertEngine(opts.DB, nil)
	}
	timeline := observability.NewAuditTimeline()
	alerts.timeline = timeline
	return &Guard{
		db:            opts.DB,
		chain:         opts.Chain,
		aggregator:    opts.Aggregator,
		alerts:        alerts,
		intervals:     intervals,
		log:           log.New(os.Stderr, "[Guard] ", log.LstdFlags),
		probes:        opts.Probes,
		ispSource:     opts.ISPProfileSource,
		ispFetcher:    opts.ISPFetcher,
		ispBaseline:   opts.ISPBaseline,
		reportBuilder: NewReportBuilder(opts.DB, opts.Aggregator),
		timeline:      timeline,
		healthStates:  make(map[string]*healthState),
	}
}

// Run starts every sub-module on its own ticker and blocks until ctx
// is cancelled.
func (g *Guard) Run(ctx context.Context) {
	g.startTicker(ctx, g.intervals.HealthProbe, g.tickHealthProbe)
	if g.chain != nil {
		g.startTicker(ctx, g.intervals.ChainWatcher, g.tickChainWatcher)
	}
	if g.ispSource != nil || g.ispFetcher != nil {
		g.startTicker(ctx, g.intervals.ISPScanner, g.tickISPScanner)
	}
	if g.aggregator != nil {
		g.startTicker(ctx, g.intervals.FlowMonitor, g.tickFlowMonitor)
		g.startTicker(ctx, g.intervals.ReportBuilder, g.tickReportBuilder)
	}
	g.wg.Wait()
}

func (g *Guard) startTicker(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}
