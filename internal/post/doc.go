// Package post defines the scheduled post entity and the value types it is
// built from: civil dates, times of day, and the closed set of content kinds.
//
// Every constructor and parser here validates; a value that made it into a
// Post is always well formed. Raw UI strings go through ParseDraft/ParsePatch,
// which report problems as *ValidationError.
package post
