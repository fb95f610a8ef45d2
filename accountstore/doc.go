// Package accountstore holds the authentication fields of portal accounts:
// identifier, password hash, TOTP secret and status.
//
// [Memory] serves tests and single-node tools. [Postgres] reads and writes
// the accounts table through database/sql over the pgx stdlib driver;
// [Migrate] applies the embedded goose migrations.
//
// Identifiers are normalized (trimmed, lower-cased) on every call, so lookups
// are case-insensitive.
package accountstore
