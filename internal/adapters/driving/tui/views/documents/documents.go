// Package documents provides the documents list view component for the TUI.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// errNoDirectory is shown when the list cannot be loaded at all.
var errNoDirectory = errors.New("document directory not available")

// View lists the documents the user can open.
type View struct {
	styles    *styles.Styles
	directory driving.DocumentDirectory
	list      *list.DocumentList

	width   int
	height  int
	err     error
	loading bool
}

// NewView creates a new documents view.
func NewView(s *styles.Styles, directory driving.DocumentDirectory) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:    s,
		directory: directory,
		list:      list.NewDocumentList(s),
	}
}

// Init loads the document list.
func (v *View) Init() tea.Cmd {
	return v.Load()
}

// Load returns a command that loads the documents.
func (v *View) Load() tea.Cmd {
	v.loading = true
	directory := v.directory
	return func() tea.Msg {
		if directory == nil {
			return messages.DocumentsLoaded{Err: errNoDirectory}
		}
		docs, err := directory.List(context.Background())
		return messages.DocumentsLoaded{Documents: docs, Err: err}
	}
}

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.DocumentsLoaded:
		v.loading = false
		if msg.Err != nil {
			v.err = msg.Err
		} else {
			v.list.SetDocuments(msg.Documents)
			v.err = nil
		}
		return v, nil

	case messages.ErrorOccurred:
		v.err = msg.Err
		return v, nil
	}

	return v, nil
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if doc := v.list.SelectedDocument(); doc != nil {
			id := doc.Document.ID
			return v, func() tea.Msg { return messages.DocumentSelected{DocumentID: id} }
		}
	case "r":
		return v, v.Load()
	default:
		v.list.Update(msg)
	}
	return v, nil
}

// View renders the documents view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("formsync"))
	b.WriteString("\n\n")

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading documents..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render(fmt.Sprintf("Error: %s", v.err.Error())))
	case v.list.Count() == 0:
		b.WriteString(v.styles.Muted.Render("No documents shared with you yet."))
	default:
		b.WriteString(v.list.View())
	}

	b.WriteString("\n\n")
	b.WriteString(v.renderHelp())
	return b.String()
}

func (v *View) renderHelp() string {
	return v.styles.Help.Render("[↑/↓] navigate  [enter] open  [r] reload  [q] quit")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	// Reserve lines for title and help.
	v.list.SetDimensions(width, height-4)
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

// Loading reports whether a load is in flight.
func (v *View) Loading() bool {
	return v.loading
}
