// Package token implements the Virtue Token: a JWT bearer credential
// encoding a holder's Sovereignty Level and the signals, shelves, and
// temporal window they may observe, plus the server-side filter every
// aggregator read is routed through before serialization.
package token

import (
	"time"

	"github.com/windi-project/windi-core/pkg/registry"
)

// SLevel is a holder's Sovereignty Level: 1 tactical, 2 strategic, 3
// sovereign.
type SLevel int

const (
	SLevelTactical  SLevel = 1
	SLevelStrategic SLevel = 2
	SLevelSovereign SLevel = 3
)

// Valid reports whether l is one of the three defined levels.
func (l SLevel) Valid() bool { return l >= SLevelTactical && l <= SLevelSovereign }

// Draft is the caller-supplied input to Issue. Unset Signals/Shelves
// are completed from the policy table; KillSwitchAuthority is forced
// false when SLevel < 2 regardless of the input value.
type Draft struct {
	Sub                 string
	SLevel              SLevel
	Domains             []string // may include "*"
	KillSwitchAuthority bool
	Signals             []string         // optional; derived from SLevel if empty
	Shelves             []registry.Shelf // optional; derived from Signals if empty
	TemporalScope       time.Duration    // optional; defaults to 24h
	Clearance           string
}

// VirtueToken is the fully-derived token object, as reconstructed by
// Validate or held in memory after Issue.
type VirtueToken struct {
	Sub                 string           `json:"sub"`
	SLevel              SLevel           `json:"s_level"`
	Domains             []string         `json:"domains"`
	KillSwitchAuthority bool             `json:"kill_switch_authority"`
	Signals             []string         `json:"signals"`
	Shelves             []registry.Shelf `json:"shelves"`
	TemporalScope       time.Duration    `json:"temporal_scope"`
	Clearance           string           `json:"clearance,omitempty"`
	IssuedAt            time.Time        `json:"iat"`
	ExpiresAt           time.Time        `json:"exp"`
	Nonce               string           `json:"nonce"`
}

// HasSignal reports whether code is in the token's signal set.
func (t *VirtueToken) HasSignal(code string) bool {
	for _, s := range t.Signals {
		if s == code {
			return true
		}
	}
	return false
}

// HasShelf reports whether shelf is in the token's shelf set.
func (t *VirtueToken) HasShelf(shelf registry.Shelf) bool {
	for _, s := range t.Shelves {
		if s == shelf {
			return true
		}
	}
	return false
}
