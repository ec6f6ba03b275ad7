package bridge

import (
	"sync"

	"github.com/windi-project/windi-core/pkg/guardian"
)

// nonceWindow is a bounded FIFO-backed set of recently seen nonces for
// one client, sized W. When the (W+1)-th nonce arrives the oldest is
// evicted from both the set and the queue, becoming re-admissible.
type nonceWindow struct {
	capacity int
	set      map[string]struct{}
	queue    []string
	head     int // index of oldest entry in queue (ring buffer)
	size     int
}

func newNonceWindow(capacity int) *nonceWindow {
	return &nonceWindow{
		capacity: capacity,
		set:      make(map[string]struct{}, capacity),
		queue:    make([]string, capacity),
	}
}

func (w *nonceWindow) has(nonce string) bool {
	_, ok := w.set[nonce]
	return ok
}

// add inserts nonce, evicting the oldest entry if the window is full.
func (w *nonceWindow) add(nonce string) {
	if w.size == w.capacity {
		oldest := w.queue[w.head]
		delete(w.set, oldest)
		w.queue[w.head] = nonce
		w.head = (w.head + 1) % w.capacity
	} else {
		idx := (w.head + w.size) % w.capacity
		w.queue[idx] = nonce
		w.size++
	}
	w.set[nonce] = struct{}{}
}

// ClientState is the per-cid anti-replay state: last accepted
// sequence, the bounded nonce window, the simulation-mode flag (the
// Open Question's per-client drift-tolerance override), and a
// TemporalGuardian that escalates against a client flooding the
// ingest endpoint.
type ClientState struct {
	mu             sync.Mutex
	LastSeq        int64
	nonces         *nonceWindow
	SimulationMode bool
	flood          *guardian.TemporalGuardian
}

func newClientState(nonceWindowSize int, policy guardian.EscalationPolicy, clock guardian.Clock) *ClientState {
	return &ClientState{
		nonces: newNonceWindow(nonceWindowSize),
		flood:  guardian.NewTemporalGuardian(policy, clock),
	}
}

// registry is the top-level, lock-guarded map of cid -> *ClientState,
// created lazily on first sight of a client.
type registry struct {
	mu         sync.Mutex
	clients    map[string]*ClientState
	window     int
	floodPlcy  guardian.EscalationPolicy
	floodClock guardian.Clock
}

func newRegistry(window int, floodPolicy guardian.EscalationPolicy, floodClock guardian.Clock) *registry {
	return &registry{
		clients:    make(map[string]*ClientState),
		window:     window,
		floodPlcy:  floodPolicy,
		floodClock: floodClock,
	}
}

func (r *registry) get(cid string) *ClientState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.clients[cid]
	if !ok {
		cs = newClientState(r.window, r.floodPlcy, r.floodClock)
		r.clients[cid] = cs
	}
	return cs
}

// SetSimulationMode sets the simulation-mode override for cid,
// creating its state if necessary. Intended to be called only from
// the s_level==3-gated admin endpoint (pkg/httpapi).
func (r *registry) SetSimulationMode(cid string, enabled bool) {
	cs := r.get(cid)
	cs.mu.Lock()
	cs.SimulationMode = enabled
	cs.mu.Unlock()
}
