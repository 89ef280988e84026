// Package status provides status bar components for the TUI.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

const separator = " · "

// Bar displays connection state, save state and keybinding hints.
type Bar struct {
	styles   *styles.Styles
	keymap   *keymap.KeyMap
	hints    []key.Binding
	readOnly bool
	conn     domain.ConnectionStatus
	unsaved  bool
	message  string
	width    int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		hints:  km.ShortHelp(),
		conn:   domain.ConnectionStatus{State: domain.ConnDisconnected},
		width:  80,
	}
}

// Init initialises the status bar.
func (s *Bar) Init() tea.Cmd {
	return nil
}

// Update handles status bar messages.
func (s *Bar) Update(msg tea.Msg) (*Bar, tea.Cmd) {
	// Bar is passive, updated via Set methods
	return s, nil
}

// View renders the status bar.
func (s *Bar) View() string {
	left := s.renderLeft()
	right := s.renderRight()

	padding := s.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return s.styles.StatusBar.Width(s.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (s *Bar) renderLeft() string {
	var parts []string
	if s.readOnly {
		parts = append(parts, s.styles.Badge.Render("read only"))
	} else {
		parts = append(parts, s.renderConnection())
		if s.unsaved {
			parts = append(parts, s.styles.Warning.Render("Unsaved changes"))
		} else {
			parts = append(parts, s.styles.Muted.Render("All changes saved"))
		}
	}
	if s.message != "" {
		parts = append(parts, s.styles.Error.Render(s.message))
	}
	return strings.Join(parts, separator)
}

func (s *Bar) renderConnection() string {
	text := s.conn.State.Description()
	switch {
	case s.conn.RetryScheduled:
		text = fmt.Sprintf("Reconnecting (attempt %d)", s.conn.Attempts+1)
	case s.conn.State == domain.ConnError && s.conn.Attempts > 0:
		text = fmt.Sprintf("%s after %d attempts", text, s.conn.Attempts)
	}
	return s.styles.Connection(s.conn.State).Render("● " + text)
}

func (s *Bar) renderRight() string {
	hints := make([]string, 0, len(s.hints))
	for _, b := range s.hints {
		h := b.Help()
		hints = append(hints, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	return s.styles.Muted.Render(strings.Join(hints, " | "))
}

// SetConnection sets the connection state shown.
func (s *Bar) SetConnection(status domain.ConnectionStatus) {
	s.conn = status
}

// Connection returns the connection state shown.
func (s *Bar) Connection() domain.ConnectionStatus {
	return s.conn
}

// SetUnsaved sets whether local changes await persistence.
func (s *Bar) SetUnsaved(unsaved bool) {
	s.unsaved = unsaved
}

// Unsaved reports whether the unsaved indicator is shown.
func (s *Bar) Unsaved() bool {
	return s.unsaved
}

// SetReadOnly switches the bar to the read-only badge.
func (s *Bar) SetReadOnly(readOnly bool) {
	s.readOnly = readOnly
}

// SetMessage sets an error message. Empty clears it.
func (s *Bar) SetMessage(message string) {
	s.message = message
}

// Message returns the current message.
func (s *Bar) Message() string {
	return s.message
}

// SetHints replaces the keybinding hints.
func (s *Bar) SetHints(bindings []key.Binding) {
	s.hints = bindings
}

// SetWidth sets the status bar width.
func (s *Bar) SetWidth(width int) {
	s.width = width
}

// Width returns the current width.
func (s *Bar) Width() int {
	return s.width
}
