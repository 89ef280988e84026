package mcp

import (
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// Ports aggregates all port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Directory lists the documents the configured user can see.
	Directory driving.DocumentDirectory

	// Documents fetches one document with the caller's tier. Optional; without
	// it single-document reads fall back to the directory listing.
	Documents driven.DocumentAPI
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Directory == nil {
		return ErrMissingDirectory
	}
	return nil
}
