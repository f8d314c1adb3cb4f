// Package telemetry provides observability instrumentation for provisioning runs.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Telemetry value.
//
// # Usage
//
// Initialize telemetry at process startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.Textfile = "/var/lib/node_exporter/fftwprov.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
// Logs go to stderr by default. Stdout is reserved for link directives consumed by
// the host build system, so it must never carry log lines.
//
//	logger := tel.Logger.NewComponentLogger("provision").WithRunID(runID)
//	logger.Info("Fetching archive")
//
// # Tracing
//
// Each run gets a root span ("provision.run") and one child span per pipeline step
// ("provision.fetch", "provision.configure", ...). Exporters:
//
//   - "none": spans are created but not exported (default)
//   - "stdout": pretty-printed spans on stderr
//   - "otlp": OTLP/gRPC to TracingConfig.Endpoint
//
// # Metrics
//
// Key metrics exposed:
//
//   - fftwprov_runs_started_total{platform}
//   - fftwprov_runs_completed_total{platform,status}
//   - fftwprov_run_duration_seconds{platform,status}
//   - fftwprov_steps_executed_total{step,status}
//   - fftwprov_step_duration_seconds{step}
//   - fftwprov_downloaded_bytes_total{scheme}
//   - fftwprov_checksum_failures_total{algorithm}
//   - fftwprov_errors_by_class_total{class,step}
//   - fftwprov_last_success_timestamp_seconds{platform}
//
// A one-shot run writes them to MetricsConfig.Textfile for the node-exporter
// textfile collector. Watch mode can also serve them over HTTP.
package telemetry
