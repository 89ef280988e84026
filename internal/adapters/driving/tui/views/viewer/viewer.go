// Package viewer provides the read-only document view for the TUI.
package viewer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/services"
)

// View renders a document the user may only read.
type View struct {
	styles *styles.Styles
	bar    *status.Bar

	document     *domain.Document
	lines        []string
	scrollOffset int
	width        int
	height       int
}

// NewView creates a new read-only view.
func NewView(s *styles.Styles, km *keymap.KeyMap) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	bar := status.NewBar(s, km)
	bar.SetReadOnly(true)
	return &View{styles: s, bar: bar}
}

// SetDocument sets the document to display.
func (v *View) SetDocument(doc domain.Document) {
	v.document = &doc
	v.scrollOffset = 0
	v.layout()
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update handles messages for the view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil
	case tea.KeyMsg:
		return v.handleKeyMsg(msg)
	}
	return v, nil
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.scrollOffset > 0 {
			v.scrollOffset--
		}
	case "down", "j":
		if v.scrollOffset < v.maxScrollOffset() {
			v.scrollOffset++
		}
	case "pgup", "ctrl+u":
		v.scrollOffset = max(0, v.scrollOffset-v.visibleLines())
	case "pgdown", "ctrl+d":
		v.scrollOffset = min(v.maxScrollOffset(), v.scrollOffset+v.visibleLines())
	case "home", "g":
		v.scrollOffset = 0
	case "end", "G":
		v.scrollOffset = v.maxScrollOffset()
	case "esc":
		if v.document == nil {
			return v, nil
		}
		id := v.document.ID
		return v, func() tea.Msg { return messages.DocumentClosed{DocumentID: id} }
	}
	return v, nil
}

// layout renders every field into wrapped display lines.
func (v *View) layout() {
	v.lines = nil
	if v.document == nil {
		return
	}
	contentWidth := max(20, v.width-4)

	for _, f := range services.RenderFields(*v.document) {
		label := f.Label + ":"
		if f.Type != domain.FieldLongText && !strings.Contains(f.Value, "\n") {
			v.lines = append(v.lines, wrap(label+" "+f.Value, contentWidth)...)
			continue
		}
		v.lines = append(v.lines, label)
		for _, para := range strings.Split(f.Value, "\n") {
			v.lines = append(v.lines, wrap("  "+para, contentWidth)...)
		}
	}
}

// wrap splits a line into chunks of at most width runes.
func wrap(line string, width int) []string {
	r := []rune(line)
	if len(r) <= width {
		return []string{line}
	}
	var out []string
	for len(r) > width {
		out = append(out, string(r[:width]))
		r = r[width:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func (v *View) visibleLines() int {
	// Reserve lines for title, separator, status bar and padding
	return max(1, v.height-6)
}

func (v *View) maxScrollOffset() int {
	return max(0, len(v.lines)-v.visibleLines())
}

// View renders the document.
func (v *View) View() string {
	if v.document == nil {
		return v.styles.Muted.Render("No document open")
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render(v.document.Title()))
	b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  %s · v%d", v.document.Kind, v.document.Version)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", max(1, min(v.width-4, 60))))
	b.WriteString("\n\n")

	visible := v.visibleLines()
	for i := v.scrollOffset; i < len(v.lines) && i < v.scrollOffset+visible; i++ {
		b.WriteString(v.styles.Normal.Render(v.lines[i]))
		b.WriteString("\n")
	}

	if len(v.lines) > visible {
		b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  Line %d-%d of %d",
			v.scrollOffset+1, min(v.scrollOffset+visible, len(v.lines)), len(v.lines))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.bar.View())
	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.bar.SetWidth(width)
	v.layout()
}

// Document returns the displayed document.
func (v *View) Document() *domain.Document {
	return v.document
}

// ScrollOffset returns the first visible line.
func (v *View) ScrollOffset() int {
	return v.scrollOffset
}
