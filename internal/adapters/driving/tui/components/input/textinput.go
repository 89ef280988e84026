// Package input provides text input components for the TUI.
package input

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
)

// defaultCharLimit applies when a field has no length limit of its own.
const defaultCharLimit = 10000

// FieldInput wraps a bubbles textinput for editing one form field.
type FieldInput struct {
	textinput textinput.Model
	styles    *styles.Styles
	label     string
	width     int
}

// NewFieldInput creates a new, unfocused field input.
func NewFieldInput(s *styles.Styles) *FieldInput {
	if s == nil {
		s = styles.DefaultStyles()
	}

	ti := textinput.New()
	ti.CharLimit = defaultCharLimit
	ti.Width = 50

	return &FieldInput{
		textinput: ti,
		styles:    s,
		width:     50,
	}
}

// Init initialises the field input.
func (f *FieldInput) Init() tea.Cmd {
	return textinput.Blink
}

// Edit loads a field's label and value and focuses the input with the
// cursor at the end. limit <= 0 uses the default limit.
func (f *FieldInput) Edit(label, value string, limit int) tea.Cmd {
	if limit <= 0 {
		limit = defaultCharLimit
	}
	f.label = label
	f.textinput.CharLimit = limit
	f.textinput.SetValue(value)
	f.textinput.CursorEnd()
	return f.textinput.Focus()
}

// Update handles input messages.
func (f *FieldInput) Update(msg tea.Msg) (*FieldInput, tea.Cmd) {
	var cmd tea.Cmd
	f.textinput, cmd = f.textinput.Update(msg)
	return f, cmd
}

// View renders the input with its label.
func (f *FieldInput) View() string {
	label := f.styles.Label.Render(f.label + ": ")
	field := f.styles.InputField.Render(f.textinput.View())
	//nolint:misspell // lipgloss.Center is the correct constant from the library
	return lipgloss.JoinHorizontal(lipgloss.Center, label, field)
}

// Value returns the current input value.
func (f *FieldInput) Value() string {
	return f.textinput.Value()
}

// Position returns the cursor offset within the value.
func (f *FieldInput) Position() int {
	return f.textinput.Position()
}

// Label returns the label of the field being edited.
func (f *FieldInput) Label() string {
	return f.label
}

// Blur removes focus from the input.
func (f *FieldInput) Blur() {
	f.textinput.Blur()
}

// Focused returns whether the input is focused.
func (f *FieldInput) Focused() bool {
	return f.textinput.Focused()
}

// SetWidth sets the width of the input.
func (f *FieldInput) SetWidth(width int) {
	f.width = width
	// Account for label and padding
	inputWidth := width - 24
	if inputWidth < 20 {
		inputWidth = 20
	}
	f.textinput.Width = inputWidth
}

// Width returns the current width.
func (f *FieldInput) Width() int {
	return f.width
}
