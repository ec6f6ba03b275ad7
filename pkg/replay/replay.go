// Package replay offline-verifies an exported pkg/auditchain ledger —
// a JSONL dump of auditchain.Record — without a live windi-guard
// process or database connection. It is the operator's last resort
// when the running chain is unreachable but an export was taken.
package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/windi-project/windi-core/pkg/auditchain"
)

// Result holds the outcome of replaying an exported chain.
type Result struct {
	TotalRecords  int            `json:"total_records"`
	ValidChain    bool           `json:"valid_chain"`
	BreakReason   string         `json:"break_reason,omitempty"`
	DuplicateIDs  []uint64       `json:"duplicate_ids,omitempty"`
	OrderValid    bool           `json:"order_valid"`
	ActionSummary map[string]int `json:"action_summary"`
}

// FromFile reads a JSONL export of auditchain.Record and replays it.
func FromFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain export: %w", err)
	}
	defer f.Close()
	return FromReader(f)
}

// FromReader replays a JSONL-encoded auditchain.Record stream.
func FromReader(r io.Reader) (*Result, error) {
	dec := json.NewDecoder(r)

	var records []auditchain.Record
	for dec.More() {
		var rec auditchain.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}

	return Replay(records), nil
}

// Replay checks causal integrity (via auditchain.VerifyRecords),
// duplicate record IDs, and timestamp ordering for an already-loaded
// record slice. Unlike auditchain.Chain.Verify, it takes its input
// from outside any live chain, so it never errors — a malformed or
// empty export just reports as such in the Result.
func Replay(records []auditchain.Record) *Result {
	result := &Result{
		TotalRecords:  len(records),
		OrderValid:    true,
		ActionSummary: make(map[string]int),
	}

	if len(records) == 0 {
		result.ValidChain = true
		return result
	}

	seen := make(map[uint64]bool, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			result.DuplicateIDs = append(result.DuplicateIDs, rec.ID)
		}
		seen[rec.ID] = true
		result.ActionSummary[rec.Action]++
	}

	result.ValidChain, result.BreakReason = auditchain.VerifyRecords(records)

	timestamps := make([]string, len(records))
	for i, rec := range records {
		timestamps[i] = rec.Timestamp.Format(time.RFC3339Nano)
	}
	result.OrderValid = sort.StringsAreSorted(timestamps)

	return result
}
