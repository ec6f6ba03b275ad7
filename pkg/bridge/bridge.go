// Package bridge implements the ingestion pipeline: schema validation,
// signature verification, anti-replay, and decode-into-aggregator, in
// strict order. Any step's failure rejects the packet and increments
// total_rejected; the Bridge is not retry-aware — the client owns
// retries.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/windi-project/windi-core/pkg/guardian"
	"github.com/windi-project/windi-core/pkg/metering"
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/signal"
	"github.com/windi-project/windi-core/pkg/windierr"
)

// DefaultProtocolConstraint accepts any additive 1.x wire change.
const DefaultProtocolConstraint = "^1.0.0"

// Options configures a Bridge.
type Options struct {
	ProtocolConstraint string                    // defaults to DefaultProtocolConstraint
	DequeCapacity      int                       // defaults to defaultDequeCapacity
	NonceWindow        int                       // defaults to NonceWindowSize
	FloodPolicy        guardian.EscalationPolicy // defaults to guardian.DefaultEscalationPolicy(); per-client ingest-rate escalation
	FloodClock         guardian.Clock            // defaults to guardian.NewClock(); override in tests
}

// Bridge is the ingestion pipeline plus its Aggregator. It is safe for
// concurrent use from multiple HTTP handler goroutines.
type Bridge struct {
	schema     *jsonschema.Schema
	constraint *semver.Constraints
	keys       *keyStore
	clients    *registry
	Aggregator *Aggregator
	log        *log.Logger

	// Meter, if set, records one usage event per cid-scoped ingest
	// outcome (accepted, rejected-after-decode, or flood-escalated).
	// Nil by default; cmd/windi-bridge sets it after construction.
	Meter metering.Meter
}

// New compiles the wire schema and constructs a Bridge.
func New(opts Options) (*Bridge, error) {
	schema, err := compileWireSchema()
	if err != nil {
		return nil, err
	}

	constraintStr := opts.ProtocolConstraint
	if constraintStr == "" {
		constraintStr = DefaultProtocolConstraint
	}
	constraint, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return nil, fmt.Errorf("bridge: invalid protocol constraint %q: %w", constraintStr, err)
	}

	nonceWindow := opts.NonceWindow
	if nonceWindow == 0 {
		nonceWindow = NonceWindowSize
	}

	dequeCapacity := opts.DequeCapacity
	if dequeCapacity == 0 {
		dequeCapacity = defaultDequeCapacity
	}

	floodPolicy := opts.FloodPolicy
	if len(floodPolicy.Thresholds) == 0 {
		floodPolicy = guardian.DefaultEscalationPolicy()
	}
	floodClock := opts.FloodClock
	if floodClock == nil {
		floodClock = guardian.NewClock()
	}

	return &Bridge{
		schema:     schema,
		constraint: constraint,
		keys:       newKeyStore(),
		clients:    newRegistry(nonceWindow, floodPolicy, floodClock),
		Aggregator: NewAggregatorWithCapacity(dequeCapacity),
		log:        log.New(os.Stderr, "[Bridge] ", log.LstdFlags),
	}, nil
}

// RegisterKey registers (or rotates) the HMAC key for kid. Persistence
// through pkg/credentials is the caller's responsibility (pkg/httpapi
// wires POST /api/v1/register to both this call and the credential
// store).
func (b *Bridge) RegisterKey(kid string, key []byte) {
	b.keys.set(kid, key)
}

// SetSimulationMode toggles the per-client clock-drift override.
func (b *Bridge) SetSimulationMode(cid string, enabled bool) {
	b.clients.SetSimulationMode(cid, enabled)
}

// Ingest runs the full pipeline over one raw wire packet. Returns
// (true, "OK ...") on acceptance or (false, "<CODE>:<DETAIL> reason")
// on rejection; every rejection increments total_rejected.
func (b *Bridge) Ingest(raw []byte) (bool, string) {
	if err := validateSchema(b.schema, raw); err != nil {
		return b.reject(err)
	}

	var pkt signal.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return b.reject(windierr.Schema("MALFORMED_JSON", err.Error()))
	}

	if err := b.checkProtocolVersion(pkt.Header.V); err != nil {
		return b.reject(err)
	}

	if err := verifySignature(b.keys, &pkt); err != nil {
		return b.reject(err)
	}

	cs := b.clients.get(pkt.Header.Cid)
	if err := checkReplay(cs, pkt.Header.Cid, pkt.Header.Ts, pkt.Header.Seq, pkt.Header.Nonce, nowMillis()); err != nil {
		return b.reject(err)
	}

	if resp := cs.flood.Evaluate(context.Background()); !resp.AllowEffect {
		b.meter(pkt.Header.Cid, metering.EventRejection)
		return b.reject(windierr.New(windierr.CodeFlood, resp.Level.String(), resp.Reason))
	}

	decoded, err := b.decode(&pkt)
	if err != nil {
		b.meter(pkt.Header.Cid, metering.EventRejection)
		return b.reject(err)
	}

	b.Aggregator.RecordAccepted(decoded)
	b.meter(pkt.Header.Cid, metering.EventIngestion)
	return true, "OK accepted"
}

// meter records a usage event if a Meter is configured. Best-effort:
// metering failures never affect the ingest outcome, only a log line.
func (b *Bridge) meter(cid string, eventType metering.EventType) {
	if b.Meter == nil {
		return
	}
	if err := b.Meter.Record(context.Background(), metering.Event{TenantID: cid, EventType: eventType, Quantity: 1}); err != nil {
		b.log.Printf("metering record failed: %v", err)
	}
}

// BatchError reports one failed item within a batch ingest.
type BatchError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestBatch ingests each raw packet in order, collecting
// per-index failures, matching POST /api/v1/telemetry/batch.
func (b *Bridge) IngestBatch(packets [][]byte) (accepted, rejected int, errs []BatchError) {
	for i, raw := range packets {
		ok, msg := b.Ingest(raw)
		if ok {
			accepted++
			continue
		}
		rejected++
		errs = append(errs, BatchError{Index: i, Reason: msg})
	}
	return accepted, rejected, errs
}

func (b *Bridge) checkProtocolVersion(v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return windierr.Schema("INVALID_VERSION", v)
	}
	if !b.constraint.Check(ver) {
		return windierr.Schema("UNSUPPORTED_VERSION", fmt.Sprintf("%s does not satisfy %s", v, b.constraint.String()))
	}
	return nil
}

func (b *Bridge) decode(pkt *signal.Packet) (signal.Decoded, error) {
	def, ok := registry.Lookup(pkt.Payload.Code)
	if !ok {
		return signal.Decoded{}, windierr.Schema("UNKNOWN_CODE", pkt.Payload.Code)
	}
	if !pkt.Payload.Shelf.Valid() {
		return signal.Decoded{}, windierr.Schema("INVALID_SHELF", string(pkt.Payload.Shelf))
	}
	if !registry.IsEvent(pkt.Payload.Event) {
		return signal.Decoded{}, windierr.Schema("UNKNOWN_EVENT", pkt.Payload.Event)
	}
	if pkt.Payload.Weight < 0 || pkt.Payload.Weight > 100 {
		return signal.Decoded{}, windierr.Schema("INVALID_WEIGHT", fmt.Sprintf("%d", pkt.Payload.Weight))
	}

	return signal.Decoded{
		ClientIDHash:   pkt.Header.Cid,
		Kid:            pkt.Header.Kid,
		Ts:             pkt.Header.Ts,
		Seq:            pkt.Header.Seq,
		Shelf:          pkt.Payload.Shelf,
		Code:           pkt.Payload.Code,
		SignalName:     def.HumanName,
		Severity:       def.Severity,
		Weight:         pkt.Payload.Weight,
		Event:          pkt.Payload.Event,
		DomainHash:     pkt.Payload.DomainHash,
		DocFingerprint: pkt.Payload.DocFingerprint,
		Ctx:            pkt.Payload.Ctx,
		IngestedAt:     nowMillis(),
	}, nil
}

func (b *Bridge) reject(err error) (bool, string) {
	b.Aggregator.RecordRejected()
	return false, err.Error()
}
