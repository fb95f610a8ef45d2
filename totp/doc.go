// Package totp implements RFC 6238 time-based one-time passwords over the
// RFC 4226 HOTP construction.
//
// Verification is a pure function of (secret, code, time, params): no state,
// no account lookups, no errors surfaced to the caller. Secrets are base32,
// case-insensitive, with padding and whitespace ignored.
//
// Provisioning ([GenerateKey]) delegates secret generation, otpauth URI
// formatting and QR rendering to github.com/pquerna/otp.
package totp
