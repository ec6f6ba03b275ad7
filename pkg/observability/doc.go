// Package observability provides OpenTelemetry tracing and metrics
// for WINDI services, both exported over OTLP gRPC.
//
// # Setup
//
// Create a Provider at application startup:
//
//	cfg := observability.DefaultConfig()
//	cfg.ServiceName = "windi-guard"
//	cfg.OTLPEndpoint = "otel-collector:4317"
//	cfg.SampleRate = 0.1 // 10% sampling in production
//	p, err := observability.New(ctx, cfg)
//	defer p.Shutdown(ctx)
//
// # Tracing
//
// Create spans manually:
//
//	ctx, span := p.StartSpan(ctx, "operation_name")
//	defer span.End()
//
// Attach WINDI attributes to the span in ctx:
//
//	observability.AddSpanEvent(ctx, "hold.activated",
//		observability.HoldOperation(holdID, "activate", actorHash)...)
//
// # Metrics
//
// Record request rate, errors and duration for one operation:
//
//	ctx, done := p.TrackOperation(ctx, "provenance.verify")
//	err := verify(ctx)
//	done(err)
package observability
