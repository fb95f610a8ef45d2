// Package jwt signs and validates the short-lived assertion handed to a
// caller once login completes. The assertion is the only "authenticated"
// marker this module produces; cookies and sessions belong to the caller.
package jwt
