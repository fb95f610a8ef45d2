// Package flows contains the request orchestrators behind Engine operations:
// the login state machine, second-factor confirmation, one-time code
// issuance and verification, and password reset.
//
// Each Run* function takes a typed dependency struct of plain functions and
// holds no state between calls, so every branch can be driven from tests with
// in-memory fakes.
//
// # Architecture boundaries
//
// Flows coordinate the attempt tracker, stores, password hasher, TOTP
// verifier, assertion signer, audit and metrics. They do not own any of
// them; the Engine does.
//
// # What this package must NOT do
//
//   - Import portalAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency functions.
//   - Log secrets, TOTP codes or one-time codes.
package flows
