package auditchain

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestChainAppend(t *testing.T) {
	c := NewChain()
	rec, err := c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 1 {
		t.Fatalf("expected id 1, got %d", rec.ID)
	}
	if len(c.All()) != 1 {
		t.Fatalf("expected 1 record, got %d", len(c.All()))
	}
}

func TestChainGenesisPreviousHash(t *testing.T) {
	c := NewChain()
	rec, _ := c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	if rec.PreviousHash != Genesis {
		t.Fatalf("expected genesis previous_hash, got %s", rec.PreviousHash)
	}
}

func TestChainIntegrity(t *testing.T) {
	c := NewChain()
	c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	c.Append("hold-1", "RELEASE", "operator-b", "", "duration expired")

	ok, reason := c.Verify()
	if !ok {
		t.Fatalf("expected valid chain, got: %s", reason)
	}
}

func TestChainHashChaining(t *testing.T) {
	c := NewChain()
	r1, _ := c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	r2, _ := c.Append("hold-1", "RELEASE", "operator-b", "", "")
	if r2.PreviousHash != r1.CurrentHash {
		t.Fatal("second record's previous_hash should match first record's current_hash")
	}
}

func TestChainDeterministicHash(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := NewChain().WithClock(fixedClock(ts))
	c1.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	c2 := NewChain().WithClock(fixedClock(ts))
	c2.Append("hold-1", "ACTIVATE", "operator-a", "", "")

	if c1.All()[0].CurrentHash != c2.All()[0].CurrentHash {
		t.Fatal("same input should produce same hash")
	}
}

func TestChainHashLength(t *testing.T) {
	c := NewChain()
	rec, _ := c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	if len(rec.CurrentHash) != 16 {
		t.Fatalf("expected 16-character truncated hash, got %d chars", len(rec.CurrentHash))
	}
}

func TestChainRecordsByDocument(t *testing.T) {
	c := NewChain()
	c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	c.Append("hold-2", "ACTIVATE", "operator-a", "", "")
	c.Append("hold-1", "RELEASE", "operator-b", "", "")

	recs := c.Records("hold-1")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records for hold-1, got %d", len(recs))
	}
}

func TestChainVerifyDetectsTamper(t *testing.T) {
	c := NewChain()
	c.Append("hold-1", "ACTIVATE", "operator-a", "", "")
	c.records[0].ActorID = "operator-z"

	ok, _ := c.Verify()
	if ok {
		t.Fatal("expected tampered chain to fail verification")
	}
}
