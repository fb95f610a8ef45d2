// Package audit implements async event dispatching for login, lockout and
// code-verification events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, identifier, surface and client IP.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Import portalAuth or any sibling internal package.
//   - Record passwords, TOTP secrets or one-time codes.
package audit
