// Command windi-bridge runs the Bridge ingestion endpoint plus the
// Governance Hold and Provenance HTTP surfaces.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/windi-project/windi-core/pkg/artifacts"
	"github.com/windi-project/windi-core/pkg/auditchain"
	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/config"
	"github.com/windi-project/windi-core/pkg/credentials"
	"github.com/windi-project/windi-core/pkg/hold"
	"github.com/windi-project/windi-core/pkg/httpapi"
	"github.com/windi-project/windi-core/pkg/kms"
	"github.com/windi-project/windi-core/pkg/metering"
	"github.com/windi-project/windi-core/pkg/provenance"
	"github.com/windi-project/windi-core/pkg/token"
)

func main() {
	cfg := config.Load()

	b, err := bridge.New(bridge.Options{})
	if err != nil {
		log.Fatalf("[windi-bridge] bridge init: %v", err)
	}

	chain := auditchain.NewChain()
	holds := hold.NewRegistry(chain)

	var mirror provenance.Mirror
	if bucket := os.Getenv("WINDI_S3_MIRROR_BUCKET"); bucket != "" {
		s3Mirror, err := artifacts.NewS3Store(context.Background(), artifacts.S3StoreConfig{
			Bucket:   bucket,
			Region:   envOr("WINDI_S3_MIRROR_REGION", "us-east-1"),
			Endpoint: os.Getenv("WINDI_S3_MIRROR_ENDPOINT"),
			Prefix:   "provenance/",
		})
		if err != nil {
			log.Printf("[windi-bridge] S3 provenance mirror disabled, init failed: %v", err)
		} else {
			mirror = s3Mirror
			log.Printf("[windi-bridge] provenance records mirrored to s3://%s/provenance/", bucket)
		}
	}

	provStore, err := provenance.NewStore(cfg.ProvenanceDir, mirror)
	if err != nil {
		log.Fatalf("[windi-bridge] provenance store init: %v", err)
	}

	localKMS, err := kms.NewLocalKMS(cfg.KMSKeystorePath)
	if err != nil {
		log.Fatalf("[windi-bridge] kms init: %v", err)
	}

	if profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.Jurisdiction); err != nil {
		log.Printf("[windi-bridge] jurisdiction=%s regional profile not loaded: %v", cfg.Jurisdiction, err)
	} else {
		log.Printf("[windi-bridge] jurisdiction=%s data_residency=%s key_rotation_days=%d island_mode=%v",
			profile.Code, profile.DataResidency, profile.CryptoPolicy.KeyRotationDays, profile.IsIslandMode())
		if profile.CryptoPolicy.RequireNationalCrypto {
			log.Printf("[windi-bridge] WARNING: jurisdiction %s requires national crypto; LocalKMS uses AES-256-GCM only", profile.Code)
		}
	}

	credDB, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[windi-bridge] credential db open: %v", err)
	}
	if _, err := credDB.Exec(`
		CREATE TABLE IF NOT EXISTS client_keys (
			id TEXT PRIMARY KEY,
			client_id_hash TEXT NOT NULL,
			key_id TEXT NOT NULL,
			hmac_key TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME,
			revoked_at DATETIME,
			UNIQUE (client_id_hash, key_id)
		)
	`); err != nil {
		log.Fatalf("[windi-bridge] credential schema migrate: %v", err)
	}
	credStore, err := credentials.NewStore(credDB, localKMS.ActiveKey())
	if err != nil {
		log.Fatalf("[windi-bridge] credential store init: %v", err)
	}

	eventDriver := "sqlite"
	if strings.HasPrefix(cfg.EventLogDB, "postgres://") || strings.HasPrefix(cfg.EventLogDB, "postgresql://") {
		eventDriver = "postgres"
	}
	eventDB, err := sql.Open(eventDriver, cfg.EventLogDB)
	if err != nil {
		log.Fatalf("[windi-bridge] event log db open: %v", err)
	}
	meter := metering.NewSQLMeter(eventDB, eventDriver)
	if err := meter.Init(context.Background()); err != nil {
		log.Fatalf("[windi-bridge] metering schema migrate: %v", err)
	}
	b.Meter = meter

	var keySet token.KeySet
	if cfg.IssuerSecret != "" {
		keySet = token.NewInMemoryKeySetFromSecret(cfg.IssuerID, []byte(cfg.IssuerSecret))
	} else {
		generated, err := token.NewInMemoryKeySet()
		if err != nil {
			log.Fatalf("[windi-bridge] keyset init: %v", err)
		}
		keySet = generated
		log.Println("[windi-bridge] WINDI_ISSUER_SECRET not set; issuing with an ephemeral key generated at startup")
	}
	policy, err := token.NewPolicyTable()
	if err != nil {
		log.Fatalf("[windi-bridge] policy table init: %v", err)
	}
	issuer := token.NewIssuer(keySet, policy, nil)

	log.Printf("[windi-bridge] server_id=%s policy_ref=%s", cfg.ServerID, cfg.PolicyRef)

	signals := &httpapi.SignalService{Bridge: b}
	holdsSvc := &httpapi.HoldService{Registry: holds}
	prov := &httpapi.ProvenanceService{Store: provStore}
	dash := &httpapi.DashboardService{Bridge: b, Issuer: issuer, Policy: policy}
	reg := &httpapi.RegisterService{Bridge: b, Store: credStore}
	admin := &httpapi.AdminService{Bridge: b}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/telemetry", signals.HandleIngest)
	mux.HandleFunc("/api/v1/telemetry/batch", signals.HandleIngestBatch)
	mux.HandleFunc("/api/v1/register", reg.HandleRegister)
	mux.HandleFunc("/api/v1/health", dash.HandleHealth)
	mux.HandleFunc("/api/v1/dashboard", dash.HandleDashboard)
	mux.HandleFunc("/api/v1/shelf/", dash.HandleShelf)
	mux.HandleFunc("/api/v1/registry", dash.HandleRegistry)
	mux.HandleFunc("/api/v1/registry/", dash.HandleRegistryCode)
	mux.HandleFunc("/api/v1/admin/simulation-mode", admin.HandleSetSimulationMode)
	mux.HandleFunc("/api/v1/admin/usage", admin.HandleUsage)
	mux.HandleFunc("/v1/holds/activate", holdsSvc.HandleActivate)
	mux.HandleFunc("/v1/holds/release", holdsSvc.HandleRelease)
	mux.HandleFunc("/v1/provenance/verify", prov.HandleVerify)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	limiter := httpapi.NewRateLimiter(int(cfg.RateLimitRPS), int(cfg.RateLimitRPS)*2)
	var handler http.Handler = mux
	handler = httpapi.BearerAuthMiddleware(issuer)(handler)
	handler = limiter.Middleware(handler)
	handler = httpapi.CORSMiddleware(splitOrigins(cfg.CORSOrigins))(handler)
	handler = httpapi.RequestIDMiddleware(handler)

	defer credDB.Close()
	defer eventDB.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[windi-bridge] listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[windi-bridge] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[windi-bridge] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[windi-bridge] shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
