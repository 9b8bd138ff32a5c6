// Package metric provides Prometheus metrics for SockMesh.
//
// Metrics include:
//
//   - Session gauges and counters, with disconnects labelled by reason
//   - Event counters labelled by event name
//   - Pending acknowledgement gauge and acknowledgement latency
//   - HTTP request counters
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
