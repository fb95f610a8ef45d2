// Package internal contains helpers private to portalAuth: challenge IDs,
// one-time code generation and client fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: attempt trackers (memory, Redis, SQLite)
//   - metrics: lock-free counters and latency histograms
//   - rate: per-key request budgets for code issuance
//   - security: configuration posture report
//   - stores: one-time code, pending challenge and TOTP counter stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalAuth API.
//   - Be imported by any package outside the portalAuth module.
package internal
