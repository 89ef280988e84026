package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/services"
)

var documentCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"document"},
	Short:   "Manage documents",
	Long:    `List, inspect, create and share documents on the relay.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents shared with you",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document's fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a document",
	Long: `Create a document of the given kind. You become its admin.

Kinds:
  article  - Long-form knowledge base article
  faq      - Question and answer
  how_to   - Step-by-step guide`,
	Args: cobra.NoArgs,
	RunE: runDocumentCreate,
}

var documentGrantCmd = &cobra.Command{
	Use:   "grant [doc-id] [user-id] [read|write|admin]",
	Short: "Set another user's access",
	Long: `Set another user's permission tier on a document. Requires admin.

Downgrading a user to read closes their live editing connections.`,
	Args: cobra.ExactArgs(3),
	RunE: runDocumentGrant,
}

var documentSetCmd = &cobra.Command{
	Use:   "set [doc-id] [field] [value]",
	Short: "Save one field",
	Long: `Save one field outside the editor. Values are parsed by field type:
numbers as numbers, yes/no for booleans, comma-separated lists for tags.`,
	Args: cobra.ExactArgs(3),
	RunE: runDocumentSet,
}

// Flags for doc create.
var (
	createKind   string
	createFormID string
	createTitle  string
)

func init() {
	documentCreateCmd.Flags().StringVarP(&createKind, "kind", "k", string(domain.KindArticle), "Document kind")
	documentCreateCmd.Flags().StringVar(&createFormID, "form", "", "Form ID (defaults to the document ID)")
	documentCreateCmd.Flags().StringVarP(&createTitle, "title", "t", "", "Initial title")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentCreateCmd)
	documentCmd.AddCommand(documentGrantCmd)
	documentCmd.AddCommand(documentSetCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	r, err := connect()
	if err != nil {
		return err
	}

	docs, err := r.api.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents shared with you yet.")
		return nil
	}

	cmd.Println("Documents shared with you:")
	cmd.Println()
	for i := range docs {
		doc := &docs[i].Document
		cmd.Printf("  %s\n", doc.ID)
		cmd.Printf("    Title:   %s\n", doc.Title())
		cmd.Printf("    Kind:    %s\n", doc.Kind)
		cmd.Printf("    Access:  %s\n", docs[i].Tier)
		cmd.Printf("    Version: %d\n", doc.Version)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	r, err := connect()
	if err != nil {
		return err
	}

	access, err := r.api.Fetch(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc := access.Document
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Kind:     %s\n", doc.Kind)
	cmd.Printf("  Form:     %s\n", doc.FormID)
	cmd.Printf("  Version:  %d\n", doc.Version)
	cmd.Printf("  Access:   %s\n", access.Tier)
	cmd.Println("\n  Fields:")
	for _, f := range services.RenderFields(doc) {
		cmd.Printf("    %s: %s\n", f.Label, f.Value)
	}

	return nil
}

func runDocumentCreate(cmd *cobra.Command, _ []string) error {
	kind := domain.DocumentKind(strings.TrimSpace(createKind))
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrUnsupportedType, createKind)
	}

	r, err := connect()
	if err != nil {
		return err
	}

	doc, err := r.api.Create(cmd.Context(), kind, createFormID)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	if createTitle != "" {
		version, err := r.api.Patch(cmd.Context(), doc.ID, map[string]any{domain.FieldTitle: createTitle})
		if err != nil {
			return fmt.Errorf("document %s created, but setting the title failed: %w", doc.ID, err)
		}
		doc.Version = version
	}

	cmd.Printf("Created %s document %s.\n", kind, doc.ID)
	return nil
}

func runDocumentGrant(cmd *cobra.Command, args []string) error {
	documentID, userID := args[0], args[1]
	tier, err := domain.ParsePermissionTier(args[2])
	if err != nil {
		return err
	}

	r, err := connect()
	if err != nil {
		return err
	}

	if err := r.api.Grant(cmd.Context(), documentID, userID, tier); err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}

	cmd.Printf("Granted %s access on %s to %s.\n", tier, documentID, userID)
	return nil
}

func runDocumentSet(cmd *cobra.Command, args []string) error {
	documentID, field, text := args[0], args[1], args[2]

	r, err := connect()
	if err != nil {
		return err
	}

	access, err := r.api.Fetch(cmd.Context(), documentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if !access.Tier.CanEdit() {
		return fmt.Errorf("%w: you have read access to %s", domain.ErrPermissionDenied, documentID)
	}

	schema, err := domain.SchemaFor(access.Document.Kind)
	if err != nil {
		return err
	}
	spec, ok := schema.Field(field)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q (fields: %s)",
			domain.ErrInvalidInput, access.Document.Kind, field, strings.Join(schema.Names(), ", "))
	}

	value, err := spec.ParseInput(text)
	if err != nil {
		return err
	}

	version, err := r.api.Patch(cmd.Context(), documentID, map[string]any{field: value})
	if errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("rejected by server: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}

	cmd.Printf("Saved %s (version %d).\n", spec.Label, version)
	return nil
}
