package server

import (
	"errors"

	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/core/services"
)

// Errors returned by Ports.Validate.
var (
	ErrMissingDocumentService = errors.New("document service is required")
	ErrMissingRelayService    = errors.New("relay service is required")
	ErrMissingTokenVerifier   = errors.New("token verifier is required")
)

// Ports aggregates everything the relay server drives.
type Ports struct {
	// Documents is the authoritative document API.
	Documents driving.DocumentService

	// Relay routes live messages between connections.
	Relay driving.RelayService

	// Tokens verifies bearer credentials.
	Tokens driven.TokenVerifier

	// Stats reports room and peer counts for metrics. Optional.
	Stats func() services.RelayStats
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Documents == nil {
		return ErrMissingDocumentService
	}
	if p.Relay == nil {
		return ErrMissingRelayService
	}
	if p.Tokens == nil {
		return ErrMissingTokenVerifier
	}
	return nil
}
