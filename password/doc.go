// Package password implements deterministic PBKDF2-HMAC-SHA256 credential digests.
//
// # Output format
//
// Digests are lowercase hex, wrapped in a versioned envelope:
//
//	$pbkdf2-sha256$i=<iterations>$<hex>
//
// The salt is the configured pepper concatenated with the lower-cased, trimmed
// account identifier, so verification needs no stored salt column. A leaked
// pepper lets an attacker attack every digest in one batch; [PBKDF2.NeedsUpgrade]
// lets callers move stored digests forward when the cost is raised.
//
// # Architecture boundaries
//
// This package owns derivation and comparison only. Password policy (minimum
// length, empty secrets) is enforced by the Engine before calling in.
//
// # What this package must NOT do
//
//   - Store or retrieve digests; callers supply plaintext and receive strings.
//   - Import any other portalAuth package.
//   - Log plaintext secrets or the pepper.
package password
