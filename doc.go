// Package portalAuth is the credential and second-factor authentication core
// of the membership portal.
//
// One [Engine] serves every login surface (administrator login, member login
// dialog, member portal). Each surface builds its own Engine from a policy
// preset, [MemberConfig] or [AdminConfig], and shares the account store,
// Redis client and notifier with the others.
//
// # Login state machine
//
//	awaiting_credentials ─┬─ locked (until the lockout expires)
//	                      ├─ rejected (wrong password, attempts remaining)
//	                      ├─ awaiting_second_factor ─┬─ authenticated
//	                      │                          └─ rejected (code retry allowed)
//	                      └─ authenticated
//
// [Engine.Login] runs the password step and [Engine.ConfirmSecondFactor] the
// TOTP step. An authenticated result carries a signed assertion that the
// transport layer turns into its own session marker.
//
// # One-time codes
//
// [Engine.IssueCode] and [Engine.VerifyCode] manage six digit codes for
// password reset and step-up verification. Codes are single use, expire
// after OTP.TTL and are delivered through a [Notifier] off the request path.
// [Engine.RequestPasswordReset] answers identically whether or not the
// account exists.
//
// # Backends
//
// With a Redis client every transient record (attempt history, codes,
// pending challenges, used TOTP steps) lives in Redis and is shared between
// instances. Without one the Engine falls back to process memory, which is
// only correct for a single instance. [Builder.WithSQLiteAttemptTracker]
// keeps lockouts across restarts without Redis.
package portalAuth
