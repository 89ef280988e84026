// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Client-side Interfaces
//
// Used by a collaborative editing session:
//
//   - DocumentAPI: Permission + content fetch and batch PATCH against the server
//   - Dialer / Conn: The persistent per-document connection
//
// # Server-side Interfaces
//
// Used by the relay server:
//
//   - DocumentStore: Authoritative documents and their version counter
//   - MembershipStore: Per-document permission tiers
//   - Fanout: Broadcast of relay messages across server instances
//   - TokenVerifier / TokenIssuer: Bearer credential handling
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
