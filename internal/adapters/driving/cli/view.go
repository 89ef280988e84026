package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/services"
)

var viewCmd = &cobra.Command{
	Use:   "view [doc-id]",
	Short: "Print a document",
	Long: `Print a document's fields without opening an editing session.

Works with any access tier. Output is styled on a terminal and plain text
otherwise; use --plain to force plain text.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

var viewPlain bool

func init() {
	viewCmd.Flags().BoolVar(&viewPlain, "plain", false, "Plain text output")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	r, err := connect()
	if err != nil {
		return err
	}

	access, err := services.NewCredentialGate(r.api).Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	view := services.NewReadOnlyView(access.Document)
	defer view.Close()

	out := cmd.OutOrStdout()
	if viewPlain || !isTerminal(out) {
		renderPlain(out, view.Content(), access.Tier)
		return nil
	}
	renderStyled(out, view.Content(), access.Tier)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderPlain(w io.Writer, doc domain.Document, tier domain.PermissionTier) {
	fmt.Fprintln(w, doc.Title())
	fmt.Fprintf(w, "%s · v%d · %s access\n\n", doc.Kind, doc.Version, tier)
	for _, f := range services.RenderFields(doc) {
		if strings.Contains(f.Value, "\n") {
			fmt.Fprintf(w, "%s:\n%s\n", f.Label, indent(f.Value, "  "))
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", f.Label, f.Value)
	}
}

func renderStyled(w io.Writer, doc domain.Document, tier domain.PermissionTier) {
	s := styles.DefaultStyles()
	fmt.Fprintln(w, s.Title.Render(doc.Title()))
	fmt.Fprintln(w, s.Muted.Render(fmt.Sprintf("%s · v%d · %s access", doc.Kind, doc.Version, tier)))
	fmt.Fprintln(w)
	for _, f := range services.RenderFields(doc) {
		value := f.Value
		if value == "" {
			value = s.Muted.Render("(empty)")
		}
		if strings.Contains(value, "\n") {
			fmt.Fprintln(w, s.Label.Render(f.Label))
			fmt.Fprintln(w, s.Normal.Render(indent(value, "  ")))
			continue
		}
		fmt.Fprintf(w, "%s %s\n", s.Label.Render(f.Label+":"), s.Normal.Render(value))
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
