// Package prometheus renders portalAuth engine counters in Prometheus text
// exposition format.
//
// One exporter covers several engines, one per login surface; every series
// carries a surface label. Counter names are portalauth_*_total and the
// single histogram is portalauth_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
