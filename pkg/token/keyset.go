package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet manages active HMAC signing keys and verification of past
// keys, supporting key rotation without downtime.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc returns the key for verification based on the token header.
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds HS256 HMAC keys in memory, keyed by kid.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string][]byte
}

// NewInMemoryKeySet constructs a KeySet with one freshly-generated key.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string][]byte)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// NewInMemoryKeySetFromSecret seeds the set with a single caller-supplied
// key under kid — used when the issuer secret comes from configuration
// rather than being generated at startup.
func NewInMemoryKeySetFromSecret(kid string, secret []byte) *InMemoryKeySet {
	ks := &InMemoryKeySet{keys: map[string][]byte{kid: secret}, currentKID: kid}
	return ks
}

// Rotate generates a new 256-bit key and makes it the active signing
// key, evicting the oldest key once more than 10 are held.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	ks.keys[kid] = key
	ks.currentKID = kid

	if len(ks.keys) > 10 {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return nil
}

func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("no active key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}

		return key, nil
	}
}
