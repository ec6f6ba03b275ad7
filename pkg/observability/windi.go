// Package observability provides WINDI-specific OpenTelemetry
// instrumentation helpers: semantic-convention attribute keys for the
// Bridge, Governance Hold, and Guard, plus span/event helpers shared
// across those components.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WINDI semantic convention attributes.
var (
	// Signal/Bridge attributes
	AttrDomainID  = attribute.Key("windi.domain.id")
	AttrShelf     = attribute.Key("windi.signal.shelf")
	AttrCode      = attribute.Key("windi.signal.code")
	AttrClientID  = attribute.Key("windi.signal.client_id_hash")

	// Governance Hold attributes
	AttrHoldID     = attribute.Key("windi.hold.id")
	AttrHoldAction = attribute.Key("windi.hold.action") // ACTIVATE | RELEASE
	AttrActorHash  = attribute.Key("windi.hold.actor_hash")

	// Provenance attributes
	AttrProvenanceID   = attribute.Key("windi.provenance.id")
	AttrStructuralHash = attribute.Key("windi.provenance.structural_hash")
	AttrVerdict        = attribute.Key("windi.provenance.verdict")

	// Guard attributes
	AttrGuardProbe    = attribute.Key("windi.guard.probe")
	AttrGuardOK       = attribute.Key("windi.guard.ok")
	AttrAlertSeverity = attribute.Key("windi.guard.alert_severity")
)

// SignalOperation creates attributes for a Bridge ingest span.
func SignalOperation(domainID, shelf, code, clientIDHash string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDomainID.String(domainID),
		AttrShelf.String(shelf),
		AttrCode.String(code),
		AttrClientID.String(clientIDHash),
	}
}

// HoldOperation creates attributes for a Governance Hold span.
func HoldOperation(holdID, action, actorHash string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrHoldID.String(holdID),
		AttrHoldAction.String(action),
		AttrActorHash.String(actorHash),
	}
}

// ProvenanceOperation creates attributes for a Verify span.
func ProvenanceOperation(provenanceID, structuralHash, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProvenanceID.String(provenanceID),
		AttrStructuralHash.String(structuralHash),
		AttrVerdict.String(verdict),
	}
}

// GuardProbeOperation creates attributes for a Guard sub-module tick span.
func GuardProbeOperation(probe string, ok bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGuardProbe.String(probe),
		AttrGuardOK.Bool(ok),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
