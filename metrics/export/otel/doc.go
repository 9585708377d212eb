// Package otel provides OpenTelemetry metric bindings for engine counters
// and histograms.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and
// Int64ObservableGauge instruments per histogram bucket. A single callback
// reads [signet.Engine.MetricsSnapshot] on each collection cycle. Callers
// own the MeterProvider; the exporter never mutates engine state.
package otel
