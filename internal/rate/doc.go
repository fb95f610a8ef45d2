// Package rate provides per-key request budgets used to throttle
// out-of-band code requests.
//
// # Backends
//
//   - [RedisLimiter]: fixed-window counter, INCR + EXPIRE on first hit, shared
//     across instances. Key prefix "prl:".
//   - [LocalLimiter]: golang.org/x/time/rate token bucket per key, process local.
//
// # What this package must NOT do
//
//   - Implement lockout policy (that lives in internal/limiters).
//   - Be imported outside the portalAuth module.
package rate
