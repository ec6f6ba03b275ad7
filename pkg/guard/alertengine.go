package guard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/windi-project/windi-core/pkg/database"
	"github.com/windi-project/windi-core/pkg/observability"
)

// dedupWindow is how long a fingerprint suppresses repeat alerts.
const dedupWindow = 5 * time.Minute

// Alert is one fireable condition raised by another sub-module.
// Fingerprint identifies the condition for deduplication; firing the
// same fingerprint again within dedupWindow is suppressed.
type Alert struct {
	Fingerprint string
	Severity    string
	Title       string
	Detail      string
}

// AlertEngine deduplicates and persists alerts fired by the other
// Guard sub-modules. Dedup state is kept in Redis when a client is
// configured, so multiple Guard replicas share suppression; otherwise
// it falls back to an in-process map.
type AlertEngine struct {
	db       *database.Client
	redis    *redis.Client
	timeline *observability.AuditTimeline

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewAlertEngine constructs an AlertEngine. rdb may be nil, in which
// case dedup state is kept only in this process.
func NewAlertEngine(db *database.Client, rdb *redis.Client) *AlertEngine {
	return &AlertEngine{
		db:    db,
		redis: rdb,
		seen:  make(map[string]time.Time),
	}
}

// Fire records a alert and persists it, unless its fingerprint was
// already fired within dedupWindow.
func (e *AlertEngine) Fire(ctx context.Context, a Alert) {
	if e.suppressed(ctx, a.Fingerprint) {
		return
	}

	now := time.Now()
	observability.AddSpanEvent(ctx, "alert.fired", observability.GuardProbeOperation(a.Fingerprint, false)...)

	if e.db != nil {
		_ = e.db.RecordAlert(ctx, a.Fingerprint, a.Severity, a.Title, a.Detail, now)
	}

	if e.timeline != nil {
		_ = e.timeline.Record(observability.TimelineEntry{
			EntryType: observability.EntryTypeAlert,
			RunID:     a.Fingerprint,
			Summary:   a.Title,
			Timestamp: now,
			Details: map[string]interface{}{
				"severity": a.Severity,
				"detail":   a.Detail,
			},
		})
	}
}

func (e *AlertEngine) suppressed(ctx context.Context, fingerprint string) bool {
	if e.redis != nil {
		return e.suppressedRedis(ctx, fingerprint)
	}
	return e.suppressedLocal(fingerprint)
}

func (e *AlertEngine) suppressedRedis(ctx context.Context, fingerprint string) bool {
	key := "windi:guard:alert:" + fingerprint
	ok, err := e.redis.SetNX(ctx, key, 1, dedupWindow).Result()
	if err != nil {
		// Redis unreachable: fail open to the in-process fallback
		// rather than dropping every alert.
		return e.suppressedLocal(fingerprint)
	}
	return !ok
}

func (e *AlertEngine) suppressedLocal(fingerprint string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if last, ok := e.seen[fingerprint]; ok && now.Sub(last) < dedupWindow {
		return true
	}
	e.seen[fingerprint] = now
	return false
}
