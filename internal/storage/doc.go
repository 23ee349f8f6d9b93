// Package storage persists the audit log of post mutations and the dedup
// keys used by the daily digest. Posts themselves are never stored here.
//
// Drivers:
//   - "file": JSON Lines audit log plus a dedup snapshot and journal
//   - "sqlite": a single SQLite database (pure Go driver)
package storage
