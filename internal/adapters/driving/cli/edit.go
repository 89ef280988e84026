package cli

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui"
	"github.com/custodia-labs/formsync/internal/logger"
)

// editCmd represents the edit command.
var editCmd = &cobra.Command{
	Use:     "edit [doc-id]",
	Aliases: []string{"tui"},
	Short:   "Edit documents in the terminal UI",
	Long: `Open the interactive editor. Without a document ID, pick one from the
documents shared with you.

Read-only documents open in a viewer. Edits are shared with other editors
as you type and saved automatically.

Controls:
  ↑/k, ↓/j - Move between fields
  Enter    - Edit field / finish editing
  Space    - Toggle yes/no and choice fields
  Ctrl+S   - Save now
  r        - Reconnect after a dropped connection
  Esc      - Back
  q        - Quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) (err error) {
	// Add panic recovery to get stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			err = fmt.Errorf("editor crashed: %v", r)
		}
	}()

	r, err := connect()
	if err != nil {
		return err
	}
	collab, err := r.collab()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := collab.Close(); cerr != nil {
			logger.Warn("closing sessions: %v", cerr)
		}
	}()

	app, err := tui.NewApp(tui.NewPorts(collab, r.api))
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	app.WithContext(cmd.Context())
	if len(args) == 1 {
		app.WithDocument(args[0])
	}

	// Logs go to a file while the alt screen owns the terminal.
	if f, ferr := openLogFile("edit.log"); ferr == nil {
		logger.SetOutput(f)
		defer func() {
			logger.SetOutput(os.Stderr)
			f.Close()
		}()
	}

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
