package token

import (
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/signal"
)

// FilteredSignal pairs a decoded signal that survived the visibility
// filter with the disclosure mode and sovereignty level it was
// revealed under.
type FilteredSignal struct {
	signal.Decoded
	Visibility VisibilityMode `json:"_visibility"`
	SLevel     SLevel         `json:"_s_level"`
}

// TokenMeta is appended to a filtered dashboard response so the
// reader can see which credential shaped the view.
type TokenMeta struct {
	Sub    string `json:"sub"`
	SLevel SLevel `json:"s_level"`
}

// MetaFor builds the _token_meta block for vt.
func MetaFor(vt *VirtueToken) TokenMeta {
	return TokenMeta{Sub: vt.Sub, SLevel: vt.SLevel}
}

// FilterSignals applies the filtering contract to one batch of decoded
// signals: drop if the code isn't in vt.Signals, drop if the shelf
// isn't in vt.Shelves, look up V(s_level, code) and drop if undefined.
// Surviving signals are annotated with the mode and level they were
// disclosed under. No visibility decision is ever made client-side —
// every aggregator read is routed through this before serialization.
func (p *PolicyTable) FilterSignals(vt *VirtueToken, in []signal.Decoded) []FilteredSignal {
	out := make([]FilteredSignal, 0, len(in))
	for _, d := range in {
		if !vt.HasSignal(d.Code) || !vt.HasShelf(d.Shelf) {
			continue
		}
		mode, ok := p.Visibility(int(vt.SLevel), d.Code)
		if !ok {
			continue
		}
		out = append(out, FilteredSignal{Decoded: d, Visibility: mode, SLevel: vt.SLevel})
	}
	return out
}

// FilterShelfMap drops every entry keyed by a shelf vt cannot see,
// leaving shelf-indexed counts and health summaries consistent with
// the signals FilterSignals would admit.
func FilterShelfMap[V any](vt *VirtueToken, in map[registry.Shelf]V) map[registry.Shelf]V {
	out := make(map[registry.Shelf]V)
	for shelf, v := range in {
		if vt.HasShelf(shelf) {
			out[shelf] = v
		}
	}
	return out
}
