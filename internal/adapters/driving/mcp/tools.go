package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/services"
)

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct {
	Kind  string `json:"kind,omitempty" jsonschema:"only return documents of this kind (article, faq or how_to)"`
	Query string `json:"query,omitempty" jsonschema:"case-insensitive substring the title must contain"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// DocumentSummary describes one listed document.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Version    int64  `json:"version"`
	Tier       string `json:"tier"`
}

// GetDocumentInput is the input schema for the get_document tool.
type GetDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document to read"`
}

// GetDocumentOutput is the output schema for the get_document tool.
type GetDocumentOutput struct {
	Document DocumentSummary `json:"document"`
	Fields   []FieldOutput   `json:"fields"`
}

// FieldOutput is one field rendered as text.
type FieldOutput struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the forms shared with the configured user",
	}, s.handleListDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document",
		Description: "Read every field of one form",
	}, s.handleGetDocument)
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	if input.Kind != "" && !domain.DocumentKind(input.Kind).IsValid() {
		return nil, ListDocumentsOutput{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, input.Kind)
	}

	docs, err := s.ports.Directory.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	output := ListDocumentsOutput{Documents: []DocumentSummary{}}
	for i := range docs {
		doc := &docs[i].Document
		if input.Kind != "" && string(doc.Kind) != input.Kind {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(doc.Title()), query) {
			continue
		}
		output.Documents = append(output.Documents, summarize(docs[i]))
	}
	output.Count = len(output.Documents)

	return nil, output, nil
}

// handleGetDocument handles the get_document tool invocation.
func (s *Server) handleGetDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	if strings.TrimSpace(input.DocumentID) == "" {
		return nil, GetDocumentOutput{}, fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}

	access, err := s.fetch(ctx, input.DocumentID)
	if err != nil {
		return nil, GetDocumentOutput{}, err
	}

	rendered := services.RenderFields(access.Document)
	output := GetDocumentOutput{
		Document: summarize(*access),
		Fields:   make([]FieldOutput, len(rendered)),
	}
	for i, f := range rendered {
		output.Fields[i] = FieldOutput{
			Name:  f.Name,
			Label: f.Label,
			Type:  string(f.Type),
			Value: f.Value,
		}
	}

	return nil, output, nil
}

// fetch reads one document, through the API when available.
func (s *Server) fetch(ctx context.Context, documentID string) (*domain.DocumentAccess, error) {
	if s.ports.Documents != nil {
		return s.ports.Documents.Fetch(ctx, documentID)
	}

	docs, err := s.ports.Directory.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Document.ID == documentID {
			return &docs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
}

func summarize(access domain.DocumentAccess) DocumentSummary {
	return DocumentSummary{
		DocumentID: access.Document.ID,
		Kind:       string(access.Document.Kind),
		Title:      access.Document.Title(),
		Version:    access.Document.Version,
		Tier:       access.Tier.String(),
	}
}
