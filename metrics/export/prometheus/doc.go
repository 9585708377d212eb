// Package prometheus renders engine metrics in Prometheus text exposition
// format without depending on the Prometheus client library.
//
// The exporter reads [signet.Engine.MetricsSnapshot] on every scrape; it
// holds no state of its own and never mutates the engine.
package prometheus
