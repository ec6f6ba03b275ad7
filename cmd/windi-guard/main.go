// Command windi-guard runs the Governance Guard daemon: health
// probing, audit-chain integrity checks, ISP drift scanning, flow
// monitoring, and uptime reporting, all feeding one AlertEngine.
//
// It is deployed colocated with a windi-bridge process (sharing the
// same Bridge.Aggregator and hold.Registry chain in production); this
// binary stands the daemon up against its own in-process instances so
// it can also run standalone against nothing but the shared database.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/windi-project/windi-core/pkg/auditchain"
	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/config"
	"github.com/windi-project/windi-core/pkg/database"
	"github.com/windi-project/windi-core/pkg/guard"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.EventLogDB)
	if err != nil {
		log.Fatalf("[windi-guard] database open: %v", err)
	}

	log.Printf("[windi-guard] server_id=%s starting", cfg.ServerID)

	chain := auditchain.NewChain()

	agg, err := bridge.New(bridge.Options{})
	if err != nil {
		log.Fatalf("[windi-guard] bridge init: %v", err)
	}

	var rdb *redis.Client
	if addr := os.Getenv("WINDI_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[windi-guard] redis unreachable at %s, alert dedup will fall back in-process: %v", addr, err)
			rdb = nil
		}
	}

	var ispSource guard.ISPProfileSource
	if bucket := os.Getenv("WINDI_ISP_PROFILE_BUCKET"); bucket != "" {
		gcsSource, err := guard.NewGCSISPSource(ctx, guard.GCSISPSourceConfig{Bucket: bucket, Prefix: "isp-profiles/"})
		if err != nil {
			log.Printf("[windi-guard] ISP scanner disabled, GCS source init failed: %v", err)
		} else {
			ispSource = gcsSource
			log.Printf("[windi-guard] ISP profiles loaded from gs://%s/isp-profiles/", bucket)
		}
	} else {
		ispSource = guard.NewDirectoryISPSource(cfg.ISPProfileDir)
		log.Printf("[windi-guard] ISP profiles loaded from %s", cfg.ISPProfileDir)
	}

	g := guard.New(guard.Options{
		DB:               db,
		Chain:            chain,
		Aggregator:       agg.Aggregator,
		Alerts:           guard.NewAlertEngine(db, rdb),
		ISPProfileSource: ispSource,
		Probes: []guard.HealthCheckFunc{
			{Name: "database", Check: func(ctx context.Context) error { return db.Ping(ctx) }},
		},
	})

	log.Println("[windi-guard] starting")
	g.Run(ctx)
	log.Println("[windi-guard] shut down")
}
