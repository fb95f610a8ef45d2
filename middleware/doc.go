// Package middleware adapts a portalAuth Engine to net/http.
//
//   - [Guard] admits requests with a valid assertion (Bearer header or the
//     [AssertionCookie] cookie) and stores the claims in the request context.
//   - [RequireSecondFactor] additionally requires an assertion earned with TOTP.
//   - [ClientContext] attaches the caller's IP and User-Agent for audit events
//     and client-keyed lockout.
//
// # What this package must NOT do
//
//   - Parse assertions itself. Engine.ParseAssertion decides.
//   - Issue cookies or run login flows.
package middleware
