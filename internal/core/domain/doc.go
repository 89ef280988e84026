// Package domain defines the core business entities for formsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A versioned form document keyed by field name
//   - PresenceEntry: One remote editor's focus and cursor state
//   - PendingChangeSet: Local edits that have not been flushed yet
//   - ConnectionState: The lifecycle of one client connection to one document
//   - Message: The logical wire messages exchanged with the relay
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
