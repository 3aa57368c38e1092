// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version),
//	    telemetry.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	pool, err := poolCfg.CreatePool(rt, embedpool.WithMeterProvider(tel.MeterProvider()))
//
// Traces and metrics go to an OTLP collector over gRPC or HTTP. Telemetry
// is off by default, in which case the otel globals (no-ops unless someone
// else installed providers) are handed out.
//
// A collector that is down never stops the process: the affected signal is
// dropped and listed by Problems. Tests use NewRecorder.
package telemetry
