package credentials

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE client_keys (
			id TEXT PRIMARY KEY,
			client_id_hash TEXT NOT NULL,
			key_id TEXT NOT NULL,
			hmac_key TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME,
			revoked_at DATETIME,
			UNIQUE (client_id_hash, key_id)
		)
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func TestStore_EncryptDecrypt(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	key := bytes.Repeat([]byte("a"), 32) // 32-byte key for AES-256
	store, err := NewStore(db, key)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	original := "super-secret-hmac-key-material"
	encrypted, err := store.encrypt(original)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if encrypted == original {
		t.Error("encrypted should not equal original")
	}

	decrypted, err := store.decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}

	if decrypted != original {
		t.Errorf("decrypted = %q, want %q", decrypted, original)
	}
}

func TestStore_SaveAndGetClientKey(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	key := bytes.Repeat([]byte("b"), 32)
	store, err := NewStore(db, key)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()

	ck := &ClientKey{
		ID:           "ck-1",
		ClientIDHash: "hash-operator-123",
		KeyID:        "k1",
		HMACKeyB64:   "base64-encoded-hmac-key",
	}

	if err := store.SaveClientKey(ctx, ck); err != nil {
		t.Fatalf("SaveClientKey failed: %v", err)
	}

	retrieved, err := store.GetClientKey(ctx, "hash-operator-123", "k1")
	if err != nil {
		t.Fatalf("GetClientKey failed: %v", err)
	}

	if retrieved == nil {
		t.Fatal("GetClientKey returned nil")
	}

	if retrieved.HMACKeyB64 != ck.HMACKeyB64 {
		t.Errorf("HMACKeyB64 = %q, want %q", retrieved.HMACKeyB64, ck.HMACKeyB64)
	}
}

func TestStore_RevokeClientKey(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	key := bytes.Repeat([]byte("c"), 32)
	store, err := NewStore(db, key)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()

	ck := &ClientKey{ID: "ck-2", ClientIDHash: "hash-operator-456", KeyID: "k1", HMACKeyB64: "sk-test-key"}
	if err := store.SaveClientKey(ctx, ck); err != nil {
		t.Fatalf("SaveClientKey failed: %v", err)
	}

	if err := store.RevokeClientKey(ctx, "hash-operator-456", "k1"); err != nil {
		t.Fatalf("RevokeClientKey failed: %v", err)
	}

	retrieved, err := store.GetClientKey(ctx, "hash-operator-456", "k1")
	if err != nil {
		t.Fatalf("GetClientKey failed: %v", err)
	}
	if retrieved == nil || retrieved.RevokedAt == nil {
		t.Error("expected revoked_at to be set after revoke")
	}
}

func TestStore_GetStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	key := bytes.Repeat([]byte("d"), 32)
	store, err := NewStore(db, key)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()

	ck := &ClientKey{ID: "ck-3", ClientIDHash: "hash-operator-789", KeyID: "k1", HMACKeyB64: "hmac-key"}
	if err := store.SaveClientKey(ctx, ck); err != nil {
		t.Fatalf("SaveClientKey failed: %v", err)
	}

	statuses, err := store.GetStatus(ctx, "hash-operator-789")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}

	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if !statuses[0].Active {
		t.Error("expected key to be active")
	}
}

func TestStore_InvalidKeyLength(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := NewStore(db, []byte("16-byte-key-xxx!")); err == nil {
		t.Error("expected error for 16-byte key")
	}

	if _, err := NewStore(db, bytes.Repeat([]byte("a"), 32)); err != nil {
		t.Errorf("unexpected error for 32-byte key: %v", err)
	}
}
