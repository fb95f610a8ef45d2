// Package limiters tracks failed credential attempts and derives lockouts.
//
// # Trackers
//
//   - [MemoryAttemptTracker]: mutex-guarded map, single process.
//   - [RedisAttemptTracker]: one Lua script per operation over a sorted set
//     of failure timestamps plus a lock key.
//   - [SQLiteAttemptTracker]: two tables, one transaction per operation,
//     survives restarts.
//
// All trackers share [AttemptConfig] semantics: failures inside a rolling
// window trigger a lockout once they reach MaxAttempts, an active lockout
// is never shortened by window pruning, and an expired lockout is cleared
// lazily on the next read together with the failure history.
//
// # What this package must NOT do
//
//   - Import portalAuth or any sibling internal package.
//   - Decide login outcomes. Flow functions decide consequences.
package limiters
