package token

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/signal"
)

func tacticalToken() *VirtueToken {
	return &VirtueToken{
		Sub:     "reader-1",
		SLevel:  SLevelTactical,
		Signals: []string{"DF-XDOM", "TM-DLM"},
		Shelves: []registry.Shelf{registry.ShelfDomainFriction, registry.ShelfTemporal},
	}
}

func TestFilterSignals_DropsUnknownCodeAndShelf(t *testing.T) {
	p, err := NewPolicyTable()
	require.NoError(t, err)

	vt := tacticalToken()
	decoded := []signal.Decoded{
		{Code: "DF-XDOM", Shelf: registry.ShelfDomainFriction}, // in scope, S3 is direct at any level
		{Code: "ID-CONC", Shelf: registry.ShelfIdentity},       // not in vt.Signals
		{Code: "TM-DLM", Shelf: registry.ShelfRelational},      // code valid but shelf mismatched vs token's shelf set
	}

	out := p.FilterSignals(vt, decoded)
	require.Len(t, out, 1)
	require.Equal(t, "DF-XDOM", out[0].Code)
	require.Equal(t, VisibilityDirect, out[0].Visibility)
	require.Equal(t, SLevelTactical, out[0].SLevel)
}

func TestFilterSignals_DropsUndefinedVisibility(t *testing.T) {
	p, err := NewPolicyTable()
	require.NoError(t, err)

	// L1 token granted an S5 (sovereign-only) signal directly; the
	// policy table still has no defined visibility for S5 below L3.
	vt := &VirtueToken{
		Sub:     "reader-2",
		SLevel:  SLevelTactical,
		Signals: []string{"DO-OVR"},
		Shelves: []registry.Shelf{registry.ShelfDecisionOverride},
	}
	decoded := []signal.Decoded{{Code: "DO-OVR", Shelf: registry.ShelfDecisionOverride}}

	out := p.FilterSignals(vt, decoded)
	require.Empty(t, out)
}

func TestFilterShelfMap_KeepsOnlyTokenShelves(t *testing.T) {
	vt := tacticalToken()
	in := map[registry.Shelf]int64{
		registry.ShelfDomainFriction: 3,
		registry.ShelfIdentity:       9,
	}

	out := FilterShelfMap(vt, in)
	require.Equal(t, map[registry.Shelf]int64{registry.ShelfDomainFriction: 3}, out)
}

func TestMetaFor(t *testing.T) {
	vt := tacticalToken()
	meta := MetaFor(vt)
	require.Equal(t, "reader-1", meta.Sub)
	require.Equal(t, SLevelTactical, meta.SLevel)
}
