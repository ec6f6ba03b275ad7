package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/windi-project/windi-core/pkg/bridge"
	"github.com/windi-project/windi-core/pkg/credentials"
)

// hmacKeySize is the raw byte length of a generated client HMAC key
// (256 bits, matching the signature scheme pkg/signal verifies
// against).
const hmacKeySize = 32

// RegisterService exposes POST /api/v1/register: it mints a client
// HMAC key, loads it into the Bridge's live keystore, and persists it
// encrypted-at-rest through the credential store.
type RegisterService struct {
	Bridge *bridge.Bridge
	Store  *credentials.Store
}

type registerRequest struct {
	ClientIDHash string `json:"client_id_hash"`
}

type registerResponse struct {
	ClientIDHash string `json:"client_id_hash"`
	KeyID        string `json:"key_id"`
	HMACKeyB64   string `json:"hmac_key_b64"`
}

// HandleRegister handles POST /api/v1/register.
func (s *RegisterService) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	var req registerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.ClientIDHash == "" {
		WriteBadRequest(w, "client_id_hash is required")
		return
	}

	key := make([]byte, hmacKeySize)
	if _, err := rand.Read(key); err != nil {
		WriteInternal(w, err)
		return
	}
	keyID := uuid.New().String()
	keyB64 := base64.StdEncoding.EncodeToString(key)

	s.Bridge.RegisterKey(keyID, key)

	ck := &credentials.ClientKey{
		ID:           uuid.New().String(),
		ClientIDHash: req.ClientIDHash,
		KeyID:        keyID,
		HMACKeyB64:   keyB64,
	}
	if err := s.Store.SaveClientKey(r.Context(), ck); err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, registerResponse{
		ClientIDHash: req.ClientIDHash,
		KeyID:        keyID,
		HMACKeyB64:   keyB64,
	})
}
