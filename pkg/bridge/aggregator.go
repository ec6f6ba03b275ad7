package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/signal"
)

// deque capacities per spec.md §3/§9 ("bounded containers").
const (
	defaultDequeCapacity   = 5000 // M
	hotspotWindow          = 200
	hotspotTop             = 5
	liveFeedSize           = 20
)

// Stats holds the aggregator's running totals.
type Stats struct {
	TotalReceived int64                     `json:"received"`
	TotalRejected int64                     `json:"rejected"`
	ByShelf       map[registry.Shelf]int64  `json:"by_shelf"`
	BySeverity    map[registry.Severity]int64 `json:"by_severity"`
	ByEvent       map[string]int64          `json:"by_event"`
	weightSum     float64
	weightCount   int64
}

// ShelfHealth summarizes one shelf's recent activity.
type ShelfHealth struct {
	Count     int64   `json:"count"`
	AvgWeight float64 `json:"avg_weight"`
	Status    string  `json:"status"`
}

// Snapshot is the aggregator's dashboard payload, produced under lock
// and then handed to callers as an independent copy.
type Snapshot struct {
	Meta        SnapshotMeta                       `json:"meta"`
	Totals      Totals                             `json:"totals"`
	ByShelf     map[registry.Shelf]int64            `json:"by_shelf"`
	BySeverity  map[registry.Severity]int64         `json:"by_severity"`
	ByEvent     map[string]int64                    `json:"by_event"`
	ShelfHealth map[registry.Shelf]ShelfHealth       `json:"shelf_health"`
	Hotspots    []signal.Decoded                    `json:"hotspots"`
	LiveFeed    []signal.Decoded                    `json:"live_feed"`
}

// SnapshotMeta carries the point-in-time sample marker.
type SnapshotMeta struct {
	SnapshotTs int64 `json:"snapshot_ts"`
}

// Totals is the flat received/rejected counter pair.
type Totals struct {
	Received int64 `json:"received"`
	Rejected int64 `json:"rejected"`
}

// Aggregator holds the bounded deque of decoded signals, per-shelf
// indexes, and running statistics. One lock covers all three, per
// spec.md §5's shared-resource policy.
type Aggregator struct {
	mu       sync.Mutex
	deque    []signal.Decoded // ring buffer, oldest first logically
	capacity int
	byShelf  map[registry.Shelf][]signal.Decoded
	stats    Stats
	clock    func() time.Time
}

// NewAggregator constructs an Aggregator with the default deque
// capacity M.
func NewAggregator() *Aggregator {
	return NewAggregatorWithCapacity(defaultDequeCapacity)
}

// NewAggregatorWithCapacity constructs an Aggregator with an explicit
// deque capacity, primarily for tests exercising eviction.
func NewAggregatorWithCapacity(capacity int) *Aggregator {
	return &Aggregator{
		capacity: capacity,
		byShelf:  make(map[registry.Shelf][]signal.Decoded),
		stats: Stats{
			ByShelf:    make(map[registry.Shelf]int64),
			BySeverity: make(map[registry.Severity]int64),
			ByEvent:    make(map[string]int64),
		},
		clock: time.Now,
	}
}

// RecordAccepted appends d to the deque, per-shelf index, and
// statistics, evicting the oldest deque entry if over capacity.
func (a *Aggregator) RecordAccepted(d signal.Decoded) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deque = append(a.deque, d)
	if len(a.deque) > a.capacity {
		a.deque = a.deque[len(a.deque)-a.capacity:]
	}

	a.byShelf[d.Shelf] = append(a.byShelf[d.Shelf], d)

	a.stats.TotalReceived++
	a.stats.ByShelf[d.Shelf]++
	a.stats.BySeverity[d.Severity]++
	a.stats.ByEvent[d.Event]++
	a.stats.weightSum += float64(d.Weight)
	a.stats.weightCount++
}

// RecordRejected increments the rejection counter. Called for every
// pipeline-step failure in bridge.go.
func (a *Aggregator) RecordRejected() {
	a.mu.Lock()
	a.stats.TotalRejected++
	a.mu.Unlock()
}

// ShelfSignals returns up to n most recent decoded signals for shelf,
// most recent last, matching GET /api/v1/shelf/{shelf}.
func (a *Aggregator) ShelfSignals(shelf registry.Shelf, n int) []signal.Decoded {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := a.byShelf[shelf]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]signal.Decoded, n)
	copy(out, all[len(all)-n:])
	return out
}

// Snapshot produces the full dashboard snapshot. snapshot_ts is
// sampled inside the lock, per spec.md §5's ordering guarantees.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Meta:        SnapshotMeta{SnapshotTs: a.clock().UnixMilli()},
		Totals:      Totals{Received: a.stats.TotalReceived, Rejected: a.stats.TotalRejected},
		ByShelf:     copyShelfCounts(a.stats.ByShelf),
		BySeverity:  copySeverityCounts(a.stats.BySeverity),
		ByEvent:     copyStringCounts(a.stats.ByEvent),
		ShelfHealth: a.computeShelfHealth(),
		Hotspots:    a.computeHotspots(),
		LiveFeed:    a.computeLiveFeed(),
	}
	return snap
}

func (a *Aggregator) computeShelfHealth() map[registry.Shelf]ShelfHealth {
	out := make(map[registry.Shelf]ShelfHealth)
	for _, shelf := range registry.Shelves {
		entries := a.byShelf[shelf]
		if len(entries) == 0 {
			continue
		}
		var sum float64
		for _, e := range entries {
			sum += float64(e.Weight)
		}
		avg := sum / float64(len(entries))
		status := "healthy"
		if avg > 75 {
			status = "critical"
		} else if avg > 50 {
			status = "warning"
		}
		out[shelf] = ShelfHealth{Count: int64(len(entries)), AvgWeight: avg, Status: status}
	}
	return out
}

// computeHotspots returns the top-5 by weight over the last 200
// signals in the deque.
func (a *Aggregator) computeHotspots() []signal.Decoded {
	window := a.deque
	if len(window) > hotspotWindow {
		window = window[len(window)-hotspotWindow:]
	}
	sorted := make([]signal.Decoded, len(window))
	copy(sorted, window)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	if len(sorted) > hotspotTop {
		sorted = sorted[:hotspotTop]
	}
	return sorted
}

func (a *Aggregator) computeLiveFeed() []signal.Decoded {
	n := liveFeedSize
	if n > len(a.deque) {
		n = len(a.deque)
	}
	out := make([]signal.Decoded, n)
	copy(out, a.deque[len(a.deque)-n:])
	return out
}

func copyShelfCounts(m map[registry.Shelf]int64) map[registry.Shelf]int64 {
	out := make(map[registry.Shelf]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySeverityCounts(m map[registry.Severity]int64) map[registry.Severity]int64 {
	out := make(map[registry.Severity]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
