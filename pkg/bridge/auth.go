package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/windi-project/windi-core/pkg/canonicalize"
	"github.com/windi-project/windi-core/pkg/signal"
	"github.com/windi-project/windi-core/pkg/windierr"
)

// keyStore is the Bridge's decrypted, in-memory cache of registered
// HMAC keys, keyed by kid. It is populated on every
// POST /api/v1/register (httpapi.RegisterService); keys persisted in
// pkg/credentials are not loaded back into it at startup.
type keyStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func newKeyStore() *keyStore {
	return &keyStore{keys: make(map[string][]byte)}
}

func (k *keyStore) set(kid string, key []byte) {
	k.mu.Lock()
	k.keys[kid] = key
	k.mu.Unlock()
}

func (k *keyStore) get(kid string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[kid]
	return key, ok
}

// verifySignature recomputes the HMAC over canonical_json({header,
// payload}) and compares it to pkt.Auth.Sig in constant time.
func verifySignature(ks *keyStore, pkt *signal.Packet) error {
	key, ok := ks.get(pkt.Header.Kid)
	if !ok {
		return windierr.Auth("UNKNOWN_KEY", pkt.Header.Kid)
	}

	canon, err := canonicalize.JCS(pkt.Signed())
	if err != nil {
		return windierr.Internal("CANONICALIZE", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(canon)
	expected := mac.Sum(nil)

	got, err := base64.StdEncoding.DecodeString(pkt.Auth.Sig)
	if err != nil {
		return windierr.Auth("HMAC_INVALID", "signature is not valid base64")
	}

	if !hmac.Equal(expected, got) {
		return windierr.Auth("HMAC_INVALID", "signature mismatch")
	}
	return nil
}
