// Package security derives a read-only posture report from a login surface
// configuration. Operators log it at startup; it never changes behavior.
package security
