package token

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/windi-project/windi-core/pkg/registry"
)

// VisibilityMode is the disclosure mode a Sovereignty Level sees a
// signal at. Defined modes per spec.md §4.C; the empty string means
// "undefined" — the filter drops the signal.
type VisibilityMode string

const (
	VisibilityDirect     VisibilityMode = "direct"
	VisibilityAggregated VisibilityMode = "aggregated"
	VisibilityHistorical VisibilityMode = "historical"
)

// visibilityExpr is the CEL source for the V(s_level, code) policy
// table, authored as a declarative expression rather than a Go
// switch, per Design Notes' "tagged unions over ad-hoc dictionary
// probing" guidance generalized to policy tables.
//
//   - S3/S6/S7 (domain friction, temporal, relational) are tactical:
//     visible directly from L1.
//   - S1/S2/S4 (identity, impact, governance density) are strategic:
//     L2+ sees them aggregated.
//   - S5 (decision override) is sovereign: only L3 sees it, and only
//     historically.
//   - Anything else is undefined (empty string), and the filter drops it.
const visibilityExpr = `
shelf in ["S3", "S6", "S7"] ? "direct" :
(s_level >= 2 && shelf in ["S1", "S2", "S4"]) ? "aggregated" :
(s_level >= 3 && shelf == "S5") ? "historical" :
""
`

// PolicyTable compiles and evaluates the visibility policy.
type PolicyTable struct {
	program cel.Program
}

// NewPolicyTable compiles visibilityExpr once. Compilation failure is
// a startup-fatal configuration error.
func NewPolicyTable() (*PolicyTable, error) {
	env, err := cel.NewEnv(
		cel.Variable("s_level", cel.IntType),
		cel.Variable("shelf", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("severity", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("token: cel env: %w", err)
	}

	ast, issues := env.Compile(visibilityExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("token: cel compile: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("token: cel program: %w", err)
	}

	return &PolicyTable{program: prg}, nil
}

// Visibility evaluates V(sLevel, code), looking up code's shelf and
// severity from the signal registry. Returns ("", false) if code is
// unregistered.
func (p *PolicyTable) Visibility(sLevel int, code string) (VisibilityMode, bool) {
	def, ok := registry.Lookup(code)
	if !ok {
		return "", false
	}
	return p.visibilityForShelf(sLevel, def.Shelf, string(def.Severity))
}

func (p *PolicyTable) visibilityForShelf(sLevel int, shelf registry.Shelf, severity string) (VisibilityMode, bool) {
	out, _, err := p.program.Eval(map[string]interface{}{
		"s_level":  int64(sLevel),
		"shelf":    string(shelf),
		"code":     "",
		"severity": severity,
	})
	if err != nil {
		return "", false
	}
	mode, ok := out.Value().(string)
	if !ok || mode == "" {
		return "", false
	}
	return VisibilityMode(mode), true
}

// DefaultSignalsForLevel returns every registered code whose shelf
// has a defined visibility at sLevel — the "signals default from
// s_level per policy table" rule in spec.md §3.
func (p *PolicyTable) DefaultSignalsForLevel(sLevel int) []string {
	var out []string
	for _, def := range registry.All() {
		if _, ok := p.visibilityForShelf(sLevel, def.Shelf, string(def.Severity)); ok {
			out = append(out, def.Code)
		}
	}
	return out
}

// DefaultShelvesForLevel derives the shelf set from the codes
// DefaultSignalsForLevel returns, per spec.md §3's
// "shelves default derived from signals via registry" rule.
func (p *PolicyTable) DefaultShelvesForLevel(sLevel int) []registry.Shelf {
	seen := make(map[registry.Shelf]bool)
	var out []registry.Shelf
	for _, code := range p.DefaultSignalsForLevel(sLevel) {
		def, ok := registry.Lookup(code)
		if !ok || seen[def.Shelf] {
			continue
		}
		seen[def.Shelf] = true
		out = append(out, def.Shelf)
	}
	return out
}

// ShelvesFromSignals derives the shelf set from an explicit signal
// list, for tokens issued with non-default signals.
func ShelvesFromSignals(signals []string) []registry.Shelf {
	seen := make(map[registry.Shelf]bool)
	var out []registry.Shelf
	for _, code := range signals {
		def, ok := registry.Lookup(code)
		if !ok || seen[def.Shelf] {
			continue
		}
		seen[def.Shelf] = true
		out = append(out, def.Shelf)
	}
	return out
}
