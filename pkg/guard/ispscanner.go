package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/windi-project/windi-core/pkg/ispprofile"
	"github.com/windi-project/windi-core/pkg/observability"
)

// ISPProfileSource lists the institutional domains Guard watches and
// loads each one's raw ISP (Institutional Safeguard Profile) document
// — from a local directory (DirectoryISPSource) or a GCS bucket
// (GCSISPSource), selected by how windi-guard was configured. isTemplate
// reports whether the document is boilerplate rather than a
// customer-specific profile (see DirectoryISPSource's doc comment).
type ISPProfileSource interface {
	ListDomains(ctx context.Context) ([]string, error)
	LoadProfile(ctx context.Context, domainID string) (raw map[string]interface{}, rawBytes []byte, isTemplate bool, err error)
}

// ISPFetcher retrieves the raw ISP profile document for domainID
// directly, without a listing capability. It predates
// ISPProfileSource and is kept for callers that already know their
// domain set (e.g. tests); new integrations should use
// ISPProfileSource so watchedDomains has something to enumerate.
type ISPFetcher func(ctx context.Context, domainID string) (map[string]interface{}, error)

// ISPBaselineFunc retrieves the last-known-good profile for domainID,
// used as the comparison point for threshold-drift detection.
type ISPBaselineFunc func(ctx context.Context, domainID string) (ispprofile.Profile, bool, error)

// driftTolerance bounds how far a threshold may move before ISPScanner
// treats it as policy drift rather than noise.
const driftTolerance = 0.05

// requiredProfileFields must resolve to a non-empty value (via
// ispprofile's deep-path lookup) or the profile is rejected outright.
var requiredProfileFields = []string{"domain_id", "policy_version"}

// recommendedProfileFields are logged when absent but do not reject
// the profile.
var recommendedProfileFields = []string{"risk_tier", "controls_enabled", "thresholds"}

// tickISPScanner loads, validates, and diffs every watched domain's
// ISP profile against its recorded baseline, alerting on drift beyond
// tolerance and on any re-hash mismatch against the stored tamper
// baseline.
func (g *Guard) tickISPScanner(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "guard.isp_scanner")
	defer span.End()

	domains, err := g.watchedDomains(ctx)
	if err != nil {
		g.log.Printf("isp scanner: list domains: %v", err)
		return
	}
	for _, domainID := range domains {
		g.scanDomain(ctx, domainID)
	}
}

func (g *Guard) watchedDomains(ctx context.Context) ([]string, error) {
	if g.ispSource == nil {
		return nil, nil
	}
	return g.ispSource.ListDomains(ctx)
}

func (g *Guard) scanDomain(ctx context.Context, domainID string) {
	now := time.Now()
	raw, rawBytes, isTemplate, err := g.loadISPProfile(ctx, domainID)
	if err != nil {
		g.log.Printf("isp scanner: fetch %s: %v", domainID, err)
		return
	}

	if missing := missingFields(raw, requiredProfileFields); len(missing) > 0 {
		g.alerts.Fire(ctx, Alert{
			Fingerprint: "isp:invalid:" + domainID,
			Severity:    "WARNING",
			Title:       fmt.Sprintf("ISP profile %s missing required fields", domainID),
			Detail:      fmt.Sprintf("missing: %v", missing),
		})
		return
	}
	if missing := missingFields(raw, recommendedProfileFields); len(missing) > 0 {
		g.log.Printf("isp scanner: %s missing recommended fields: %v", domainID, missing)
	}

	profile := ispprofile.Normalize(raw)
	profile.DomainID = domainID

	// Template profiles are onboarding boilerplate, not a specific
	// institution's customized data, so they have nothing to
	// establish a tamper baseline against.
	valid := true
	if !isTemplate {
		if tampered, reason := g.checkHashBaseline(ctx, domainID, rawBytes, now); tampered {
			valid = false
			g.alerts.Fire(ctx, Alert{
				Fingerprint: "isp:tamper:" + domainID,
				Severity:    "CRITICAL",
				Title:       fmt.Sprintf("ISP profile %s failed baseline hash check", domainID),
				Detail:      reason,
			})
		}
	}

	if g.db != nil {
		if dbErr := g.db.RecordISPScan(ctx, domainID, profile, valid, now); dbErr != nil {
			g.log.Printf("isp scanner: persist %s: %v", domainID, dbErr)
		}
	}
	observability.AddSpanEvent(ctx, "isp_scanner.scanned", observability.GuardProbeOperation("isp:"+domainID, valid)...)

	if g.ispBaseline == nil {
		return
	}
	baseline, found, err := g.ispBaseline(ctx, domainID)
	if err != nil || !found {
		return
	}
	delta := ispprofile.Delta(profile, baseline, driftTolerance)
	if len(delta) == 0 {
		return
	}
	g.alerts.Fire(ctx, Alert{
		Fingerprint: "isp:drift:" + domainID,
		Severity:    "WARNING",
		Title:       fmt.Sprintf("ISP profile drift on domain %s", domainID),
		Detail:      fmt.Sprintf("%d threshold(s) moved beyond tolerance: %v", len(delta), delta),
	})
}

// loadISPProfile prefers the listing-capable ISPProfileSource; it
// falls back to the older direct ISPFetcher, which never yields raw
// bytes, so hash-baseline enforcement is skipped for that path.
func (g *Guard) loadISPProfile(ctx context.Context, domainID string) (map[string]interface{}, []byte, bool, error) {
	if g.ispSource != nil {
		return g.ispSource.LoadProfile(ctx, domainID)
	}
	if g.ispFetcher == nil {
		return nil, nil, false, fmt.Errorf("isp scanner: no profile source configured")
	}
	raw, err := g.ispFetcher(ctx, domainID)
	if err != nil {
		return nil, nil, false, err
	}
	return raw, nil, false, nil
}

// checkHashBaseline re-hashes rawBytes and compares it to the stored
// hash_baselines entry for domainID. The first scan for a domain
// establishes the baseline rather than alerting.
func (g *Guard) checkHashBaseline(ctx context.Context, domainID string, rawBytes []byte, now time.Time) (tampered bool, reason string) {
	if g.db == nil || len(rawBytes) == 0 {
		return false, ""
	}
	sum := sha256.Sum256(rawBytes)
	contentHash := hex.EncodeToString(sum[:])

	baseline, found, err := g.db.GetHashBaseline(ctx, domainID)
	if err != nil {
		g.log.Printf("isp scanner: baseline lookup %s: %v", domainID, err)
		return false, ""
	}
	if !found {
		if err := g.db.SetHashBaseline(ctx, domainID, contentHash, now); err != nil {
			g.log.Printf("isp scanner: baseline establish %s: %v", domainID, err)
		}
		return false, ""
	}
	if baseline != contentHash {
		return true, fmt.Sprintf("content hash %s does not match baseline %s", truncateHash(contentHash), truncateHash(baseline))
	}
	return false, ""
}

func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func missingFields(raw map[string]interface{}, fields []string) []string {
	var missing []string
	for _, f := range fields {
		if !ispprofile.HasField(raw, f) {
			missing = append(missing, f)
		}
	}
	return missing
}
