package tui

import "errors"

// ErrMissingCollabService is returned when the collaboration service is not provided.
var ErrMissingCollabService = errors.New("tui: collab service is required")

// ErrNothingToShow is returned when neither a directory nor a starting
// document is available.
var ErrNothingToShow = errors.New("tui: a document ID or directory is required")

// ErrInvalidPorts is returned when ports validation fails.
var ErrInvalidPorts = errors.New("tui: invalid ports configuration")
