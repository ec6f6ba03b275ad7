// Package ispprofile normalizes arbitrarily-nested ISP (Institutional
// Safeguard Profile) JSON documents — pulled from heterogeneous
// upstream sources with inconsistent nesting — into the flat Profile
// shape the Guard's ISPScanner compares against a baseline.
package ispprofile

import (
	"strconv"
	"strings"
)

// Profile is the normalized, flat view of an ISP document.
type Profile struct {
	DomainID        string            `json:"domain_id"`
	PolicyVersion   string            `json:"policy_version"`
	ControlsEnabled []string          `json:"controls_enabled"`
	RiskTier        string            `json:"risk_tier"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Raw             map[string]interface{} `json:"-"`
}

// fieldPaths lists, for each Profile field, the dotted paths it may
// appear under in an upstream document, tried in order. Upstream
// sources disagree on nesting depth and casing, so every plausible
// location is probed rather than requiring one canonical shape.
var fieldPaths = map[string][]string{
	"domain_id":        {"domain_id", "domain.id", "meta.domain_id", "identity.domain_id"},
	"policy_version":   {"policy_version", "policy.version", "meta.policy_version"},
	"risk_tier":        {"risk_tier", "risk.tier", "assessment.risk_tier"},
	"controls_enabled": {"controls_enabled", "controls.enabled", "policy.controls_enabled"},
	"thresholds":       {"thresholds", "policy.thresholds", "assessment.thresholds"},
}

// Normalize flattens raw into a Profile, tolerating whichever nesting
// the upstream source used.
func Normalize(raw map[string]interface{}) Profile {
	p := Profile{
		Thresholds: make(map[string]float64),
		Raw:        raw,
	}

	p.DomainID = firstString(raw, fieldPaths["domain_id"])
	p.PolicyVersion = firstString(raw, fieldPaths["policy_version"])
	p.RiskTier = firstString(raw, fieldPaths["risk_tier"])

	for _, path := range fieldPaths["controls_enabled"] {
		if list := lookupStringSlice(raw, path); list != nil {
			p.ControlsEnabled = list
			break
		}
	}

	for _, path := range fieldPaths["thresholds"] {
		if m := lookupFloatMap(raw, path); m != nil {
			p.Thresholds = m
			break
		}
	}

	return p
}

// HasField reports whether field resolves to a non-empty value
// somewhere in raw, trying every dotted path registered for that
// field in fieldPaths (falling back to raw[field] directly for
// fields with no registered path list). Used by the Guard's
// ISPScanner to validate required/recommended profile fields without
// caring how deeply an upstream source nested them.
func HasField(raw map[string]interface{}, field string) bool {
	paths, ok := fieldPaths[field]
	if !ok {
		paths = []string{field}
	}
	for _, path := range paths {
		if v, ok := lookup(raw, path); ok && !isEmptyValue(v) {
			return true
		}
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// lookup walks a dotted path ("a.b.c") through nested
// map[string]interface{} values, returning (nil, false) if any
// segment is missing or not a map.
func lookup(raw map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var cur interface{} = raw
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func firstString(raw map[string]interface{}, paths []string) string {
	for _, path := range paths {
		if v, ok := lookup(raw, path); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func lookupStringSlice(raw map[string]interface{}, path string) []string {
	v, ok := lookup(raw, path)
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func lookupFloatMap(raw map[string]interface{}, path string) map[string]float64 {
	v, ok := lookup(raw, path)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, val := range m {
		switch n := val.(type) {
		case float64:
			out[k] = n
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				out[k] = f
			}
		}
	}
	return out
}

// Delta reports the thresholds whose value differs from baseline by
// more than tolerance, keyed by threshold name.
func Delta(current, baseline Profile, tolerance float64) map[string]float64 {
	out := make(map[string]float64)
	for k, base := range baseline.Thresholds {
		cur, ok := current.Thresholds[k]
		if !ok {
			continue
		}
		diff := cur - base
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			out[k] = cur - base
		}
	}
	return out
}
