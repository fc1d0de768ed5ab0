// Package history persists completed analyses in SQLite and answers the
// lookups the gateway needs to reuse earlier verdicts.
//
// The Store manages database connections, schema initialization, retention
// pruning, and the fingerprint queries behind the verdict cache: exact
// replay by SHA-256 digest and near-duplicate replay by perceptual-hash
// distance for images. Records capture the verdict, the per-detector score
// map, and enough file identity to render history listings without touching
// the original media again.
//
// The database doubles as an audit trail for examiners, so records are only
// removed by explicit clear commands or the configured retention window.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package history
