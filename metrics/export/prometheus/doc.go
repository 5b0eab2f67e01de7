// Package prometheus exposes authcore engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector and reads
// [authcore.Engine.MetricsSnapshot] on every scrape. Counter names are
// prefixed authcore_ and end in _total; the only histogram is
// authcore_get_user_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the default registry unless Register is called with nil.
//   - Mutate engine state.
package prometheus
