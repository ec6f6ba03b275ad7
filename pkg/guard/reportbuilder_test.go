package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/database"
)

func openTestDB(t *testing.T) *database.Client {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReportBuilder_VerifiedRequiresAllThreeConjuncts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 20; i++ {
		require.NoError(t, db.RecordHealthCheck(ctx, "probe", true, "", now))
	}
	require.NoError(t, db.RecordChainCheck(ctx, true, "", now))
	require.NoError(t, db.RecordISPScan(ctx, "domain-1", map[string]string{"domain_id": "domain-1"}, true, now))

	g := New(Options{DB: db, Alerts: NewAlertEngine(nil, nil)})
	g.tickReportBuilder(ctx)

	g.alerts.mu.Lock()
	_, fired := g.alerts.seen["report:uptime"]
	g.alerts.mu.Unlock()
	require.False(t, fired, "intact chain, valid ISPs, and full uptime must verify")
}

func TestReportBuilder_ChainBreakFailsVerification(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 20; i++ {
		require.NoError(t, db.RecordHealthCheck(ctx, "probe", true, "", now))
	}
	require.NoError(t, db.RecordChainCheck(ctx, false, "broken link", now))
	require.NoError(t, db.RecordISPScan(ctx, "domain-1", map[string]string{"domain_id": "domain-1"}, true, now))

	g := New(Options{DB: db, Alerts: NewAlertEngine(nil, nil)})
	g.tickReportBuilder(ctx)

	g.alerts.mu.Lock()
	_, fired := g.alerts.seen["report:uptime"]
	g.alerts.mu.Unlock()
	require.True(t, fired, "a chain break must fail verification even with perfect uptime")
}

func TestReportBuilder_InvalidISPScanFailsVerification(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 20; i++ {
		require.NoError(t, db.RecordHealthCheck(ctx, "probe", true, "", now))
	}
	require.NoError(t, db.RecordChainCheck(ctx, true, "", now))
	require.NoError(t, db.RecordISPScan(ctx, "domain-1", map[string]string{"domain_id": "domain-1"}, false, now))

	g := New(Options{DB: db, Alerts: NewAlertEngine(nil, nil)})
	g.tickReportBuilder(ctx)

	g.alerts.mu.Lock()
	_, fired := g.alerts.seen["report:uptime"]
	g.alerts.mu.Unlock()
	require.True(t, fired, "a failing ISP scan must fail verification even with perfect uptime and an intact chain")
}

func TestReportBuilder_LowUptimeFailsVerificationDespiteIntactChainAndISPs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.RecordHealthCheck(ctx, "probe", i < 5, "", now)) // 50% uptime
	}
	require.NoError(t, db.RecordChainCheck(ctx, true, "", now))
	require.NoError(t, db.RecordISPScan(ctx, "domain-1", map[string]string{"domain_id": "domain-1"}, true, now))

	g := New(Options{DB: db, Alerts: NewAlertEngine(nil, nil)})
	g.tickReportBuilder(ctx)

	g.alerts.mu.Lock()
	_, fired := g.alerts.seen["report:uptime"]
	g.alerts.mu.Unlock()
	require.True(t, fired)
}
