// Package mcp provides an MCP (Model Context Protocol) server adapter for formsync.
// It lets AI assistants read the forms a user has access to. Nothing here edits.
package mcp

import "errors"

// ErrMissingDirectory is returned when the document directory is not provided.
var ErrMissingDirectory = errors.New("mcp: document directory is required")
