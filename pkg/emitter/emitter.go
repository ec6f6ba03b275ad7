// Package emitter builds, signs, and serializes outbound Micro-Signal
// packets. It is the edge-side counterpart to pkg/bridge: stateless
// per packet except for the monotonic sequence counter, and it never
// retries — buffering and retry policy belong to a collaborator.
package emitter

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/text/unicode/norm"

	"github.com/windi-project/windi-core/pkg/canonicalize"
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/signal"
	"github.com/windi-project/windi-core/pkg/windierr"
)

// ProtocolVersion is the wire-format version this emitter stamps into
// every packet header.
const ProtocolVersion = "1.0.0"

// Config configures an Emitter instance.
type Config struct {
	ClientID string
	KeyID    string

	// ClientSalt salts domain_hash and doc_fingerprint derivations.
	ClientSalt []byte

	// HMACKey is the raw signing key for KeyID. When empty and
	// IssuerSecret is set, the key is derived via HKDF-SHA256.
	HMACKey []byte

	// IssuerSecret, when HMACKey is empty, is the master secret an
	// emitter derives its per-KeyID signing key from. The Bridge does
	// not derive keys: it verifies against the key registered for
	// KeyID.
	IssuerSecret []byte
}

// resolveKey returns the effective signing key for cfg, deriving it
// via HKDF-SHA256(secret, salt=kid, info="windi-emitter-hmac") when no
// explicit key is configured.
func resolveKey(cfg Config) ([]byte, error) {
	if len(cfg.HMACKey) > 0 {
		return cfg.HMACKey, nil
	}
	if len(cfg.IssuerSecret) == 0 {
		return nil, windierr.New(windierr.CodeError, "CONFIG", "neither HMACKey nor IssuerSecret configured")
	}
	kdf := hkdf.New(sha256.New, cfg.IssuerSecret, []byte(cfg.KeyID), []byte("windi-emitter-hmac"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, windierr.Wrap(windierr.CodeError, "CONFIG", "hkdf derivation failed", err)
	}
	return key, nil
}

// EventSpec describes one outbound signal before wire encoding.
type EventSpec struct {
	Shelf         registry.Shelf
	Code          string
	Weight        int
	DomainID      string
	DocVectorBytes []byte
	Event         string
	CtxWindow     string
	CtxFlags      []string
	Ts            *time.Time // optional override, defaults to now
}

// Emitter signs and serializes Micro-Signal packets for one logical
// client. It is safe for concurrent use.
type Emitter struct {
	cfg          Config
	key          []byte
	clientIDHash string
	seq          int64 // atomic
}

// New validates cfg and constructs an Emitter. It fails with
// windierr.CodeSchema/"CONFIG" when ClientID or KeyID is empty, and
// with windierr.CodeError/"CONFIG" when no key material is configured
// or key derivation fails.
func New(cfg Config) (*Emitter, error) {
	if cfg.ClientID == "" || cfg.KeyID == "" {
		return nil, windierr.New(windierr.CodeSchema, "CONFIG", "client_id and key_id are required")
	}
	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, windierr.New(windierr.CodeSchema, "CONFIG", "resolved signing key is empty")
	}

	h := sha256.Sum256([]byte(cfg.ClientID))
	return &Emitter{
		cfg:          cfg,
		key:          key,
		clientIDHash: hex.EncodeToString(h[:]),
	}, nil
}

// Emit builds, signs, and returns one wire packet for spec.
func (e *Emitter) Emit(spec EventSpec) (*signal.Packet, error) {
	if !spec.Shelf.Valid() {
		return nil, windierr.Schema("INVALID_SHELF", string(spec.Shelf))
	}
	if _, ok := registry.Lookup(spec.Code); !ok {
		return nil, windierr.Schema("UNKNOWN_CODE", spec.Code)
	}
	if !registry.IsEvent(spec.Event) {
		return nil, windierr.Schema("UNKNOWN_EVENT", spec.Event)
	}
	if spec.Weight < 0 || spec.Weight > 100 {
		return nil, windierr.Schema("INVALID_WEIGHT", fmt.Sprintf("%d", spec.Weight))
	}

	ts := time.Now().UTC()
	if spec.Ts != nil {
		ts = *spec.Ts
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, windierr.Wrap(windierr.CodeError, "NONCE", "failed to generate nonce", err)
	}

	domainID := norm.NFC.String(spec.DomainID)
	domainHash := e.saltedHash([]byte(domainID))
	docFingerprint := e.saltedHash(spec.DocVectorBytes)

	pkt := &signal.Packet{
		Header: signal.Header{
			V:     ProtocolVersion,
			Kid:   e.cfg.KeyID,
			Cid:   e.clientIDHash,
			Ts:    ts.UnixMilli(),
			Nonce: nonce,
			Seq:   atomic.AddInt64(&e.seq, 1),
		},
		Payload: signal.Payload{
			Shelf:          spec.Shelf,
			Code:           spec.Code,
			Weight:         spec.Weight,
			Event:          spec.Event,
			DomainHash:     domainHash,
			DocFingerprint: docFingerprint,
			Ctx:            signal.Context{Window: spec.CtxWindow, Flags: spec.CtxFlags},
		},
	}

	sig, err := e.sign(pkt.Signed())
	if err != nil {
		return nil, windierr.Wrap(windierr.CodeError, "SIGNATURE", "signing failed", err)
	}
	pkt.Auth = signal.Auth{Sig: sig}

	return pkt, nil
}

// EmitBatch emits a packet for each spec in order, stopping at the
// first error. Each packet still carries an independently
// monotonically increasing seq.
func (e *Emitter) EmitBatch(specs []EventSpec) ([]*signal.Packet, error) {
	out := make([]*signal.Packet, 0, len(specs))
	for i, spec := range specs {
		pkt, err := e.Emit(spec)
		if err != nil {
			return out, fmt.Errorf("batch[%d]: %w", i, err)
		}
		out = append(out, pkt)
	}
	return out, nil
}

func (e *Emitter) sign(section signal.SignedSection) (string, error) {
	canon, err := canonicalize.JCS(section)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, e.key)
	mac.Write(canon)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (e *Emitter) saltedHash(data []byte) string {
	h := sha256.New()
	h.Write(e.cfg.ClientSalt)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func randomNonce() (string, error) {
	buf := make([]byte, 16) // 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
