// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

// DocumentList displays openable documents in a navigable list.
type DocumentList struct {
	documents []domain.DocumentAccess
	selected  int
	styles    *styles.Styles
	width     int
	height    int
}

// NewDocumentList creates a new document list component.
func NewDocumentList(s *styles.Styles) *DocumentList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &DocumentList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the list.
func (l *DocumentList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (l *DocumentList) Update(msg tea.Msg) (*DocumentList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		}
	}
	return l, nil
}

// View renders the list.
func (l *DocumentList) View() string {
	if len(l.documents) == 0 {
		return l.styles.Muted.Render("No documents")
	}

	lines := make([]string, 0, len(l.documents)*2+2)
	lines = append(lines, l.styles.Subtitle.Render(fmt.Sprintf("Documents (%d)", len(l.documents))), "")

	// Each document takes two lines.
	visibleCount := (l.height - 4) / 2
	if visibleCount < 1 {
		visibleCount = 1
	}

	start := 0
	if l.selected >= visibleCount {
		start = l.selected - visibleCount + 1
	}
	end := start + visibleCount
	if end > len(l.documents) {
		end = len(l.documents)
	}

	for i := start; i < end; i++ {
		lines = append(lines, l.renderDocument(i, &l.documents[i]))
	}

	return strings.Join(lines, "\n")
}

func (l *DocumentList) renderDocument(index int, access *domain.DocumentAccess) string {
	indicator := "  "
	if index == l.selected {
		indicator = "> "
	}

	title := access.Document.Title()
	maxTitleLen := l.width - 20
	if maxTitleLen < 10 {
		maxTitleLen = 10
	}
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen-3] + "..."
	}

	tier := string(access.Tier)
	var titleLine string
	if index == l.selected {
		titleLine = l.styles.Selected.Render(fmt.Sprintf("%s%-*s  %s", indicator, maxTitleLen, title, tier))
	} else {
		titleLine = l.styles.Normal.Render(fmt.Sprintf("%s%-*s  ", indicator, maxTitleLen, title)) +
			l.styles.Muted.Render(tier)
	}

	detail := fmt.Sprintf("    %s · %s · v%d", access.Document.Kind, access.Document.ID, access.Document.Version)
	return titleLine + "\n" + l.styles.Muted.Render(detail)
}

// SetDocuments replaces the list contents.
func (l *DocumentList) SetDocuments(documents []domain.DocumentAccess) {
	l.documents = documents
	l.selected = 0
}

// Documents returns the current documents.
func (l *DocumentList) Documents() []domain.DocumentAccess {
	return l.documents
}

// Selected returns the index of the selected document.
func (l *DocumentList) Selected() int {
	return l.selected
}

// SelectedDocument returns the selected document, or nil if none.
func (l *DocumentList) SelectedDocument() *domain.DocumentAccess {
	if len(l.documents) == 0 || l.selected < 0 || l.selected >= len(l.documents) {
		return nil
	}
	return &l.documents[l.selected]
}

// MoveUp moves selection up.
func (l *DocumentList) MoveUp() {
	if l.selected > 0 {
		l.selected--
	}
}

// MoveDown moves selection down.
func (l *DocumentList) MoveDown() {
	if l.selected < len(l.documents)-1 {
		l.selected++
	}
}

// SetDimensions sets the component dimensions.
func (l *DocumentList) SetDimensions(width, height int) {
	l.width = width
	l.height = height
}

// Count returns the number of documents.
func (l *DocumentList) Count() int {
	return len(l.documents)
}
