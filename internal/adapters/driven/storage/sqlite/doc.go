// Package sqlite provides a SQLite-based implementation of the relay
// server's document and membership stores.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Both stores share one database connection:
//
//   - DocumentStore: documents with their fields as a JSON column
//   - MembershipStore: per-document permission tiers
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.formsync/data/formsync.db
package sqlite
