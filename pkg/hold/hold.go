// Package hold implements the Governance Hold: a dual-actor kill
// switch that suspends a domain's autonomous decision flow for a
// bounded duration, with every activation and release recorded to an
// audit chain.
//
// The escalation-ladder shape (bounded duration, actor authorization
// check, append-only trail) follows pkg/guardian's TemporalGuardian,
// generalized from a rate-based graded response to an explicit
// dual-actor activate/release state machine.
package hold

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windi-project/windi-core/pkg/auditchain"
	"github.com/windi-project/windi-core/pkg/token"
	"github.com/windi-project/windi-core/pkg/windierr"
)

// MaxDuration is the hard cap on a single hold's duration.
const MaxDuration = 72 * time.Hour

// Status is a hold's lifecycle state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReleased Status = "RELEASED"
	StatusExpired  Status = "EXPIRED"
)

// Hold is a single Governance Hold instance.
type Hold struct {
	ID            string    `json:"id"`
	DomainID      string    `json:"domain_id"`
	Reason        string    `json:"reason"`
	ActivatedBy   string    `json:"activated_by"` // actor_hash
	ActivatedAt   time.Time `json:"activated_at"`
	Duration      time.Duration `json:"duration"`
	ExpiresAt     time.Time `json:"expires_at"`
	Status        Status    `json:"status"`
	ReleasedBy    string    `json:"released_by,omitempty"`
	ReleasedAt    time.Time `json:"released_at,omitempty"`
	ReleaseReason string    `json:"release_reason,omitempty"`
}

// active reports whether the hold is still suppressing activity at t.
func (h *Hold) active(t time.Time) bool {
	return h.Status == StatusActive && t.Before(h.ExpiresAt)
}

// Registry tracks active and historical holds per domain, backed by an
// append-only audit chain.
type Registry struct {
	mu    sync.RWMutex
	holds map[string]*Hold // by ID
	chain *auditchain.Chain
	clock func() time.Time
}

// NewRegistry constructs a hold registry backed by chain. A nil chain
// creates a private one (tests only).
func NewRegistry(chain *auditchain.Chain) *Registry {
	if chain == nil {
		chain = auditchain.NewChain()
	}
	return &Registry{holds: make(map[string]*Hold), chain: chain, clock: time.Now}
}

// Activate opens a new hold on domainID. Only an SLevel >= Strategic
// holder with KillSwitchAuthority may activate one; duration must not
// exceed MaxDuration.
func (r *Registry) Activate(ctx context.Context, actor *token.VirtueToken, domainID, reason string, duration time.Duration) (*Hold, error) {
	if actor == nil || !actor.KillSwitchAuthority || actor.SLevel < token.SLevelStrategic {
		return nil, windierr.Hold("UNAUTHORIZED", "actor lacks kill-switch authority")
	}
	if duration <= 0 || duration > MaxDuration {
		return nil, windierr.Hold("DURATION_EXCEEDED", fmt.Sprintf("duration must be in (0, %s]", MaxDuration))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	actorHash := hashActor(actor.Sub)

	h := &Hold{
		ID:          uuid.New().String(),
		DomainID:    domainID,
		Reason:      reason,
		ActivatedBy: actorHash,
		ActivatedAt: now,
		Duration:    duration,
		ExpiresAt:   now.Add(duration),
		Status:      StatusActive,
	}
	r.holds[h.ID] = h

	if _, err := r.chain.Append(h.ID, "ACTIVATE", actorHash, domainID, reason); err != nil {
		return nil, windierr.Internal("AUDIT_CHAIN", err)
	}
	return h, nil
}

// Release closes an active hold early. Any SLevel >= Strategic holder
// with KillSwitchAuthority may release a hold — not necessarily the
// one who activated it (dual-actor requirement).
func (r *Registry) Release(ctx context.Context, actor *token.VirtueToken, holdID, reason string) (*Hold, error) {
	if actor == nil || !actor.KillSwitchAuthority || actor.SLevel < token.SLevelStrategic {
		return nil, windierr.Hold("RELEASE_UNAUTHORIZED", "actor lacks kill-switch authority")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.holds[holdID]
	if !ok {
		return nil, windierr.Hold("NO_ACTIVE_HOLDS", "no such hold")
	}
	now := r.clock().UTC()
	if !h.active(now) {
		return nil, windierr.Hold("ALREADY_RELEASED", "hold is already released or expired")
	}

	actorHash := hashActor(actor.Sub)
	h.Status = StatusReleased
	h.ReleasedBy = actorHash
	h.ReleasedAt = now
	h.ReleaseReason = reason

	if _, err := r.chain.Append(h.ID, "RELEASE", actorHash, h.DomainID, reason); err != nil {
		return nil, windierr.Internal("AUDIT_CHAIN", err)
	}
	return h, nil
}

// ActiveHolds returns every currently-active hold, expiring any whose
// window has lapsed as a side effect.
func (r *Registry) ActiveHolds() []*Hold {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	var out []*Hold
	for _, h := range r.holds {
		if h.Status == StatusActive && !now.Before(h.ExpiresAt) {
			h.Status = StatusExpired
			continue
		}
		if h.active(now) {
			out = append(out, h)
		}
	}
	return out
}

// IsHeld reports whether domainID is currently under an active hold.
func (r *Registry) IsHeld(domainID string) bool {
	for _, h := range r.ActiveHolds() {
		if h.DomainID == domainID {
			return true
		}
	}
	return false
}

// Trail returns the full audit-chain history for a hold.
func (r *Registry) Trail(holdID string) []auditchain.Record {
	return r.chain.Records(holdID)
}

func hashActor(sub string) string {
	sum := sha256.Sum256([]byte(sub))
	return hex.EncodeToString(sum[:])
}
