// Package signal defines the Micro-Signal wire format: the header,
// payload, and auth sections the Emitter produces and the Bridge
// ingests, plus the decoded, registry-enriched form the Aggregator
// holds in memory.
package signal

import "github.com/windi-project/windi-core/pkg/registry"

// Header carries the packet's wire-level routing and anti-replay
// metadata.
type Header struct {
	V     string `json:"v"`
	Kid   string `json:"kid"`
	Cid   string `json:"cid"`
	Ts    int64  `json:"ts"`
	Nonce string `json:"nonce"`
	Seq   int64  `json:"seq"`
}

// Context carries the free-form windowing/flag metadata attached to a
// payload.
type Context struct {
	Window string   `json:"window,omitempty"`
	Flags  []string `json:"flags,omitempty"`
}

// Payload carries the governance-relevant content of the signal. It
// never contains document content, only structural fingerprints.
type Payload struct {
	Shelf          registry.Shelf `json:"shelf"`
	Code           string         `json:"code"`
	Weight         int            `json:"weight"`
	Event          string         `json:"event"`
	DomainHash     string         `json:"domain_hash"`
	DocFingerprint string         `json:"doc_fingerprint"`
	Ctx            Context        `json:"ctx,omitempty"`
}

// Auth carries the wire-level signature over {header, payload}.
type Auth struct {
	Sig string `json:"sig"`
}

// Packet is the full wire-level Micro-Signal.
type Packet struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
	Auth    Auth    `json:"auth"`
}

// SignedSection is the portion of a Packet that the signature covers:
// canonical_json({header, payload}).
type SignedSection struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
}

// Signed returns the {header, payload} view used as signature input.
func (p *Packet) Signed() SignedSection {
	return SignedSection{Header: p.Header, Payload: p.Payload}
}

// Decoded is the ingested form of a Packet: wire fields plus registry
// lookups and the derived client-id hash, as held in the Bridge's
// bounded deque and per-shelf indexes.
type Decoded struct {
	ClientIDHash   string         `json:"client_id_hash"`
	Kid            string         `json:"kid"`
	Ts             int64          `json:"ts"`
	Seq            int64          `json:"seq"`
	Shelf          registry.Shelf `json:"shelf"`
	Code           string         `json:"code"`
	SignalName     string         `json:"signal_name"`
	Severity       registry.Severity `json:"severity"`
	Weight         int            `json:"weight"`
	Event          string         `json:"event"`
	DomainHash     string         `json:"domain_hash"`
	DocFingerprint string         `json:"doc_fingerprint"`
	Ctx            Context        `json:"ctx,omitempty"`
	IngestedAt     int64          `json:"ingested_at"`
}
