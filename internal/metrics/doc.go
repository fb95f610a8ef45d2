// Package metrics provides lock-free counters and latency histograms for
// portalAuth observability.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically via [sync/atomic.AddUint64]. Histograms use 8 fixed buckets
// (≤5ms … +Inf). Both are allocation-free on the write path. IDs are
// assigned by the root package; this package only sizes the table.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import portalAuth or any sibling package.
//   - Expose global metric registries.
package metrics
