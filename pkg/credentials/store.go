// Package credentials provides encrypted-at-rest storage for the HMAC
// keys issued to Bridge clients through POST /api/v1/register.
// AES-256-GCM at rest, key supplied by pkg/kms so the raw secret never
// touches disk unencrypted.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ClientKey is one registered Bridge client's HMAC signing key.
type ClientKey struct {
	ID           string     `json:"id" db:"id"`
	ClientIDHash string     `json:"client_id_hash" db:"client_id_hash"`
	KeyID        string     `json:"key_id" db:"key_id"`
	HMACKeyB64   string     `json:"-" db:"hmac_key"` // encrypted at rest
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// ClientKeyStatus is the public-facing status without the key material.
type ClientKeyStatus struct {
	ClientIDHash string     `json:"client_id_hash"`
	KeyID        string     `json:"key_id"`
	Active       bool       `json:"active"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// Store manages encrypted client-key storage.
type Store struct {
	db     *sql.DB
	encKey []byte
	mu     sync.RWMutex
}

// StoreOption configures the credential store.
type StoreOption func(*Store)

// NewStore creates a client-key store. encryptionKey must be exactly 32
// bytes for AES-256; callers pass kms.Manager.ActiveKey() (or an
// equivalent) rather than holding a raw key themselves.
func NewStore(db *sql.DB, encryptionKey []byte, opts ...StoreOption) (*Store, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes for AES-256")
	}

	s := &Store{db: db, encKey: encryptionKey}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// encrypt encrypts plaintext using AES-256-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts ciphertext using AES-256-GCM.
func (s *Store) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, cipherBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, cipherBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// SaveClientKey stores or updates a client key with encryption.
func (s *Store) SaveClientKey(ctx context.Context, ck *ClientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encKey, err := s.encrypt(ck.HMACKeyB64)
	if err != nil {
		return fmt.Errorf("failed to encrypt hmac key: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO client_keys (id, client_id_hash, key_id, hmac_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (client_id_hash, key_id) DO UPDATE SET
			hmac_key = EXCLUDED.hmac_key,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, ck.ID, ck.ClientIDHash, ck.KeyID, encKey, now)
	return err
}

// GetClientKey retrieves a client key by client and key ID.
func (s *Store) GetClientKey(ctx context.Context, clientIDHash, keyID string) (*ClientKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ck ClientKey
	var encKey sql.NullString
	var lastUsedAt, revokedAt sql.NullTime

	query := `
		SELECT id, client_id_hash, key_id, hmac_key, created_at, updated_at, last_used_at, revoked_at
		FROM client_keys
		WHERE client_id_hash = $1 AND key_id = $2
	`

	err := s.db.QueryRowContext(ctx, query, clientIDHash, keyID).Scan(
		&ck.ID, &ck.ClientIDHash, &ck.KeyID, &encKey, &ck.CreatedAt, &ck.UpdatedAt, &lastUsedAt, &revokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if encKey.Valid {
		ck.HMACKeyB64, err = s.decrypt(encKey.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt hmac key: %w", err)
		}
	}
	if lastUsedAt.Valid {
		ck.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		ck.RevokedAt = &revokedAt.Time
	}

	return &ck, nil
}

// GetStatus returns the public status of every key registered for a client.
func (s *Store) GetStatus(ctx context.Context, clientIDHash string) ([]ClientKeyStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key_id, last_used_at, revoked_at FROM client_keys WHERE client_id_hash = $1`, clientIDHash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var statuses []ClientKeyStatus
	for rows.Next() {
		var keyID string
		var lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(&keyID, &lastUsedAt, &revokedAt); err != nil {
			return nil, err
		}
		status := ClientKeyStatus{ClientIDHash: clientIDHash, KeyID: keyID, Active: !revokedAt.Valid}
		if lastUsedAt.Valid {
			status.LastUsedAt = &lastUsedAt.Time
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// RevokeClientKey marks a client key revoked; Bridge stops accepting
// signals signed with it on the next lookup.
func (s *Store) RevokeClientKey(ctx context.Context, clientIDHash, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE client_keys SET revoked_at = $1 WHERE client_id_hash = $2 AND key_id = $3`
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), clientIDHash, keyID)
	return err
}

// UpdateLastUsed updates the last_used_at timestamp.
func (s *Store) UpdateLastUsed(ctx context.Context, clientIDHash, keyID string) error {
	query := `UPDATE client_keys SET last_used_at = $1 WHERE client_id_hash = $2 AND key_id = $3`
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), clientIDHash, keyID)
	return err
}
