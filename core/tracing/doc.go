// Package tracing configures OpenTelemetry for the controllers.
//
// Each reconciliation iteration runs inside one span named after the object
// kind ("switch_controller", "rack_controller", ...). Spans are exported over
// OTLP using either gRPC or HTTP. When tracing is disabled the provider hands
// out a no-op tracer so callers never need to branch.
//
// # Usage
//
//	p, err := tracing.NewProvider(ctx, cfg.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(ctx)
//	ctx, span := p.Tracer().Start(ctx, "switch_controller")
//	defer span.End()
package tracing
