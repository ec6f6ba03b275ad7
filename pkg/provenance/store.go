package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/windi-project/windi-core/pkg/windierr"
)

// Mirror is a best-effort durability backend for persisted records
// (pkg/artifacts.S3Store satisfies this via its content-addressed
// Store method).
type Mirror interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// IndexEntry is one row of provenance/index.json, keyed by
// submission_id.
type IndexEntry struct {
	RecordPath      string          `json:"record_path"`
	StructuralHash  string          `json:"structural_hash"`
	GovernanceLevel GovernanceLevel `json:"governance_level"`
	ResilienceScore int             `json:"resilience_score"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Store is a local, atomic-write provenance index with an optional
// off-box mirror. Records are written to
// <dir>/records/<submission_id>.json via a temp-file-then-rename so a
// crash mid-write never leaves a half-written record visible; the
// submission_id -> record index at <dir>/index.json is rewritten the
// same way under the same lock.
type Store struct {
	mu     sync.RWMutex
	dir    string
	mirror Mirror
}

// NewStore constructs a Store rooted at dir, creating its records
// subdirectory if absent. mirror may be nil to disable off-box
// replication.
func NewStore(dir string, mirror Mirror) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "records"), 0o755); err != nil {
		return nil, fmt.Errorf("provenance: create store dir: %w", err)
	}
	return &Store{dir: dir, mirror: mirror}, nil
}

func (s *Store) recordsDir() string { return filepath.Join(s.dir, "records") }
func (s *Store) indexPath() string  { return filepath.Join(s.dir, "index.json") }

func (s *Store) recordPath(submissionID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(submissionID)
	return filepath.Join(s.recordsDir(), safe+".json")
}

// shouldPersist implements the HIGH/MEDIUM/LOW persistence rule: HIGH
// is always written, MEDIUM only when a submission_id is present, and
// LOW only when the submission_id is explicitly forced with a
// "FORCE-" prefix.
func shouldPersist(rec *Record) bool {
	switch rec.GovernanceContext.Level {
	case LevelHigh:
		return true
	case LevelMedium:
		return rec.SubmissionID != ""
	default:
		return strings.HasPrefix(rec.SubmissionID, "FORCE-")
	}
}

// Put persists rec per the governance-level persistence rule. It
// returns persisted=false, nil (not an error) when the rule says rec
// should not be written — MEDIUM with no submission_id, or LOW
// without a FORCE- prefix. HIGH write failures are always returned to
// the caller; MEDIUM/LOW mirror failures are surfaced too, since a
// caller that asked for persistence is entitled to know it didn't
// happen, but a successful local write with a failed mirror reports
// persisted=true alongside the mirror error.
func (s *Store) Put(ctx context.Context, rec *Record) (persisted bool, err error) {
	if !shouldPersist(rec) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return false, windierr.Internal("MARSHAL", err)
	}

	path := s.recordPath(rec.SubmissionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, windierr.Internal("WRITE", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, windierr.Internal("RENAME", err)
	}

	if err := s.updateIndexLocked(rec, path); err != nil {
		return false, err
	}

	if s.mirror != nil {
		if _, err := s.mirror.Store(ctx, data); err != nil {
			return true, windierr.Wrap(windierr.CodeError, "MIRROR_FAILED", "local write succeeded but mirror failed", err)
		}
	}
	return true, nil
}

func (s *Store) updateIndexLocked(rec *Record, recordPath string) error {
	idx, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	idx[rec.SubmissionID] = IndexEntry{
		RecordPath:      recordPath,
		StructuralHash:  rec.CryptographicProof.StructuralHash,
		GovernanceLevel: rec.GovernanceContext.Level,
		ResilienceScore: rec.DeepfakeResilience.Score,
		UpdatedAt:       time.Now().UTC(),
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return windierr.Internal("MARSHAL_INDEX", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return windierr.Internal("WRITE_INDEX", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return windierr.Internal("RENAME_INDEX", err)
	}
	return nil
}

func (s *Store) loadIndexLocked() (map[string]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return map[string]IndexEntry{}, nil
	}
	if err != nil {
		return nil, windierr.Internal("READ_INDEX", err)
	}
	var idx map[string]IndexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, windierr.Internal("UNMARSHAL_INDEX", err)
	}
	return idx, nil
}

// Get loads a record by submission_id via the index, returning
// (nil, nil) if none exists — callers use this to distinguish "no
// record" (UNKNOWN verdict) from a read error.
func (s *Store) Get(submissionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.loadIndexLocked()
	if err != nil {
		return nil, err
	}
	entry, ok := idx[submissionID]
	if !ok {
		return nil, nil
	}

	data, err := os.ReadFile(entry.RecordPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, windierr.Internal("READ", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, windierr.Internal("UNMARSHAL", err)
	}
	return &rec, nil
}

// FindSubmissionByHashPrefix scans the index for a structural_hash
// starting with prefix, returning its submission_id. Backs
// VerifyByHash.
func (s *Store) FindSubmissionByHashPrefix(prefix string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.loadIndexLocked()
	if err != nil {
		return "", false
	}
	for submissionID, entry := range idx {
		if strings.HasPrefix(entry.StructuralHash, prefix) {
			return submissionID, true
		}
	}
	return "", false
}
