// Package tui provides an interactive terminal user interface for formsync.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the TUI.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Collab opens documents for viewing or editing.
	Collab driving.CollabService

	// Directory lists shareable documents. Optional; without it the TUI
	// only shows the document it was started on.
	Directory driving.DocumentDirectory
}

// NewPorts creates a new Ports aggregate with the given services.
func NewPorts(collab driving.CollabService, directory driving.DocumentDirectory) *Ports {
	return &Ports{
		Collab:    collab,
		Directory: directory,
	}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Collab == nil {
		return ErrMissingCollabService
	}
	return nil
}
