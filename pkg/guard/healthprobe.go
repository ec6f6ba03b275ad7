package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/windi-project/windi-core/pkg/observability"
)

// HealthCheckFunc performs one probe and reports its outcome. name
// identifies the probe for persistence and alerting.
type HealthCheckFunc struct {
	Name  string
	Check func(ctx context.Context) error
}

// healthState tracks one probe's consecutive-failure count, escalating
// through the same OK → DEGRADED → CRITICAL ladder shape as
// pkg/guardian's rate-based escalation, but keyed on failure streaks
// rather than effect rate.
type healthState struct {
	consecutiveFailures int
	level               string
}

const (
	degradedAfter = 3
	criticalAfter = 6
)

func (s *healthState) record(ok bool) {
	if ok {
		s.consecutiveFailures = 0
		s.level = "OK"
		return
	}
	s.consecutiveFailures++
	switch {
	case s.consecutiveFailures >= criticalAfter:
		s.level = "CRITICAL"
	case s.consecutiveFailures >= degradedAfter:
		s.level = "DEGRADED"
	default:
		s.level = "OK"
	}
}

func (g *Guard) tickHealthProbe(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "guard.health_probe")
	defer span.End()

	var wg sync.WaitGroup
	for _, probe := range g.probes {
		wg.Add(1)
		go func(p HealthCheckFunc) {
			defer wg.Done()
			g.runProbe(ctx, p)
		}(probe)
	}
	wg.Wait()
}

func (g *Guard) runProbe(ctx context.Context, p HealthCheckFunc) {
	now := time.Now()
	err := p.Check(ctx)
	ok := err == nil

	g.healthMu.Lock()
	st, exists := g.healthStates[p.Name]
	if !exists {
		st = &healthState{}
		g.healthStates[p.Name] = st
	}
	st.record(ok)
	level := st.level
	streak := st.consecutiveFailures
	g.healthMu.Unlock()

	detail := "ok"
	if err != nil {
		detail = err.Error()
	}

	if g.db != nil {
		if dbErr := g.db.RecordHealthCheck(ctx, p.Name, ok, detail, now); dbErr != nil {
			g.log.Printf("health probe %s: persist failed: %v", p.Name, dbErr)
		}
	}

	observability.AddSpanEvent(ctx, "health_probe.result", observability.GuardProbeOperation(p.Name, ok)...)

	if g.timeline != nil {
		_ = g.timeline.Record(observability.TimelineEntry{
			EntryType: observability.EntryTypeGuardProbe,
			RunID:     p.Name,
			Summary:   fmt.Sprintf("health probe %s: %s", p.Name, level),
			Timestamp: now,
		})
	}

	if level == "DEGRADED" || level == "CRITICAL" {
		g.alerts.Fire(ctx, Alert{
			Fingerprint: "health:" + p.Name,
			Severity:    level,
			Title:       fmt.Sprintf("health probe %s %s", p.Name, level),
			Detail:      fmt.Sprintf("%d consecutive failures: %s", streak, detail),
		})
	}
}
