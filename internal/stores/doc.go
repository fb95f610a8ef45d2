// Package stores provides short-lived record stores for the login and
// code-verification flows: issued one-time codes, pending second-factor
// challenges and the last accepted TOTP step per account. Each store has a
// Redis backend and an in-memory backend with identical semantics.
//
// # Design
//
// Redis records are versioned, binary-encoded and carry a TTL matching their
// logical expiry. Mutations (Consume, RecordFailure) use WATCH/MULTI
// optimistic transactions with bounded retry. Expiry is evaluated against the
// caller-supplied clock, never a background sweep. Code comparisons are
// constant time over SHA-256 digests; plaintext codes are never stored.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT generate codes, deliver them, or decide login
// outcomes; those belong to the engine and internal/flows.
//
// # What this package must NOT do
//
//   - Import portalAuth or any sibling internal package.
//   - Log or expose plaintext codes.
package stores
