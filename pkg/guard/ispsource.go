package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectoryISPSource loads institutional ISP profile JSON documents
// from a local directory, one file per domain: <dir>/<domain_id>.json.
// Documents under <dir>/templates/ are boilerplate profiles used to
// bootstrap new institutions before they customize anything — they
// are still validated for required/recommended fields but excluded
// from hash-baseline tamper enforcement.
type DirectoryISPSource struct {
	Dir string
}

// NewDirectoryISPSource constructs a DirectoryISPSource rooted at dir.
func NewDirectoryISPSource(dir string) *DirectoryISPSource {
	return &DirectoryISPSource{Dir: dir}
}

// ListDomains returns every domain ID with a profile directly under
// Dir (template-only domains are not watched for drift on their own).
func (s *DirectoryISPSource) ListDomains(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("isp source: read %s: %w", s.Dir, err)
	}
	var domains []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		domains = append(domains, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(domains)
	return domains, nil
}

// LoadProfile reads <Dir>/<domainID>.json, falling back to
// <Dir>/templates/<domainID>.json when no customized profile exists.
func (s *DirectoryISPSource) LoadProfile(ctx context.Context, domainID string) (map[string]interface{}, []byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, domainID+".json"))
	isTemplate := false
	if err != nil {
		data, err = os.ReadFile(filepath.Join(s.Dir, "templates", domainID+".json"))
		if err != nil {
			return nil, nil, false, fmt.Errorf("isp source: load %s: %w", domainID, err)
		}
		isTemplate = true
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, false, fmt.Errorf("isp source: parse %s: %w", domainID, err)
	}
	if inlineTemplate(raw) {
		isTemplate = true
	}
	return raw, data, isTemplate, nil
}

// inlineTemplate reports whether raw marks itself as a template
// document via a top-level "template" key, rather than relying on its
// location under a templates/ directory.
func inlineTemplate(raw map[string]interface{}) bool {
	v, ok := raw["template"]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	default:
		return false
	}
}
