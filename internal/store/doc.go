// Package store is the content store of the knowledge base: resources and
// their child entities in SQLite, with an FTS5 full-text index over
// resource titles and content.
//
// # Corruption guard
//
// Every operation that can touch the full-text index runs through
// withRepair, a bounded repair-and-retry protocol. On a recognized SQLite
// corruption error the guard invalidates cached prepared statements,
// rebuilds the FTS index from the resource rows, and retries the operation
// once. If corruption persists it runs one more aggressive cycle — dropping
// and recreating the index structure — and retries once more. After two
// cycles the error is surfaced kind-tagged; the guard never retries
// unboundedly. Non-corruption errors pass through untouched.
//
// # Query sanitization
//
// SanitizeMatchQuery strips FTS5 operator syntax from raw user input and
// quotes each remaining term, so a query like `fox -"bar` can never raise a
// syntax error from the index; input that sanitizes to nothing matches
// nothing.
//
// # Build modes
//
// Two SQLite drivers are supported via build tags: mattn/go-sqlite3 with
// the sqlite-vec extension (cgo, tag sqlite_vec) and modernc.org/sqlite
// (purego, default). See build_cgo.go and build_purego.go.
package store
