// Package editor provides the collaborative form editor view for the TUI.
package editor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/core/services"
)

// saveTimeout bounds an explicit save.
const saveTimeout = 15 * time.Second

// View edits one document through a collaboration session.
type View struct {
	styles *styles.Styles
	keymap *keymap.KeyMap
	input  *input.FieldInput
	bar    *status.Bar

	session driving.CollabSession
	schema  domain.Schema
	doc     domain.Document
	editors []domain.PresenceEntry

	selected int
	editing  bool
	lastText string
	lastPos  int
	saving   bool
	note     string

	width  int
	height int
}

// NewView creates an editor with no session.
func NewView(s *styles.Styles, km *keymap.KeyMap) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	bar := status.NewBar(s, km)
	bar.SetHints(km.EditorHelp())
	return &View{
		styles: s,
		keymap: km,
		input:  input.NewFieldInput(s),
		bar:    bar,
	}
}

// SetSession switches the editor to a session and reads its state.
func (v *View) SetSession(session driving.CollabSession) {
	v.session = session
	v.selected = 0
	v.editing = false
	v.note = ""
	v.input.Blur()
	v.bar.SetHints(v.keymap.EditorHelp())

	doc := session.Content()
	v.schema, _ = domain.SchemaFor(doc.Kind)
	v.Refresh()
}

// Session returns the session being edited, or nil.
func (v *View) Session() driving.CollabSession {
	return v.session
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return nil
}

// Refresh re-reads the session snapshot.
func (v *View) Refresh() {
	if v.session == nil {
		return
	}
	v.doc = v.session.Content()
	v.editors = v.session.ActiveEditors()
	v.bar.SetConnection(v.session.ConnectionStatus())
	v.bar.SetUnsaved(v.session.HasUnsavedChanges())
	if err := v.session.Err(); err != nil {
		v.bar.SetMessage(err.Error())
	} else {
		v.bar.SetMessage(v.note)
	}
}

// Update handles messages for the editor.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case messages.SessionUpdated:
		v.Refresh()
		return v, nil

	case messages.SaveCompleted:
		v.saving = false
		if msg.Err != nil {
			v.note = "Save failed: " + msg.Err.Error()
		} else {
			v.note = ""
		}
		v.Refresh()
		return v, nil

	case tea.KeyMsg:
		if v.session == nil {
			return v, nil
		}
		if v.editing {
			return v.handleEditingKey(msg)
		}
		return v.handleKey(msg)
	}

	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case keymap.Matches(msg.String(), v.keymap.Up):
		if v.selected > 0 {
			v.selected--
		}
	case keymap.Matches(msg.String(), v.keymap.Down):
		if v.selected < len(v.schema)-1 {
			v.selected++
		}
	case keymap.Matches(msg.String(), v.keymap.Toggle):
		v.toggle()
	case keymap.Matches(msg.String(), v.keymap.Select):
		return v, v.beginEditing()
	case keymap.Matches(msg.String(), v.keymap.Save):
		return v, v.save()
	case keymap.Matches(msg.String(), v.keymap.Retry):
		if err := v.session.RetryConnection(); err != nil {
			v.note = err.Error()
		}
		v.Refresh()
	case keymap.Matches(msg.String(), v.keymap.Dismiss):
		v.note = ""
		v.session.ClearError()
		v.Refresh()
	case keymap.Matches(msg.String(), v.keymap.Back):
		id := v.session.DocumentID()
		return v, func() tea.Msg { return messages.DocumentClosed{DocumentID: id} }
	}
	return v, nil
}

func (v *View) handleEditingKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case keymap.Matches(msg.String(), v.keymap.Done):
		v.finishEditing()
		return v, nil
	case keymap.Matches(msg.String(), v.keymap.Save):
		v.finishEditing()
		return v, v.save()
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	v.pushInput()
	return v, cmd
}

// beginEditing focuses the selected field. Booleans and single choices
// toggle in place instead.
func (v *View) beginEditing() tea.Cmd {
	spec, ok := v.current()
	if !ok {
		return nil
	}
	if spec.Type == domain.FieldBoolean || spec.Type == domain.FieldSingleChoice {
		v.toggle()
		return nil
	}

	value, _ := v.doc.Field(spec.Name)
	text := editText(value)
	v.editing = true
	v.lastText = text
	v.lastPos = len([]rune(text))
	v.note = ""
	v.bar.SetHints(v.keymap.FieldHelp())
	v.session.StartEditing(spec.Name)
	return v.input.Edit(spec.Label, text, spec.MaxLength())
}

// pushInput sends the input's value when it changed, or the caret when
// only the caret moved.
func (v *View) pushInput() {
	spec, ok := v.current()
	if !ok {
		return
	}
	text, pos := v.input.Value(), v.input.Position()
	switch {
	case text != v.lastText:
		value, err := spec.ParseInput(text)
		if err != nil {
			v.note = err.Error()
			break
		}
		v.note = ""
		v.session.DebouncedUpdate(spec.Name, value)
		v.lastText = text
	case pos != v.lastPos:
		v.session.UpdateCursor(spec.Name, pos, nil, nil)
	}
	v.lastPos = pos
	v.Refresh()
}

func (v *View) finishEditing() {
	v.pushInput()
	v.editing = false
	v.input.Blur()
	v.bar.SetHints(v.keymap.EditorHelp())
	v.session.StopEditing()
	v.Refresh()
}

// toggle flips a boolean or advances a single choice to its next option.
func (v *View) toggle() {
	spec, ok := v.current()
	if !ok {
		return
	}
	value, _ := v.doc.Field(spec.Name)

	switch spec.Type {
	case domain.FieldBoolean:
		b, _ := value.(bool)
		v.session.DebouncedUpdate(spec.Name, !b)
	case domain.FieldSingleChoice:
		if len(spec.Choices) == 0 {
			return
		}
		current, _ := value.(string)
		next := spec.Choices[0]
		if i := slices.Index(spec.Choices, current); i >= 0 && i+1 < len(spec.Choices) {
			next = spec.Choices[i+1]
		}
		v.session.DebouncedUpdate(spec.Name, next)
	default:
		return
	}
	v.Refresh()
}

func (v *View) save() tea.Cmd {
	if v.saving {
		return nil
	}
	v.saving = true
	session := v.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		return messages.SaveCompleted{DocumentID: session.DocumentID(), Err: session.SaveNow(ctx)}
	}
}

func (v *View) current() (domain.FieldSpec, bool) {
	if v.selected < 0 || v.selected >= len(v.schema) {
		return domain.FieldSpec{}, false
	}
	return v.schema[v.selected], true
}

// Hide flushes pending changes because the terminal lost focus.
func (v *View) Hide() {
	if v.session != nil {
		v.session.Hide()
	}
}

// Editing reports whether a field is focused.
func (v *View) Editing() bool {
	return v.editing
}

// Selected returns the index of the selected field.
func (v *View) Selected() int {
	return v.selected
}

// View renders the editor.
func (v *View) View() string {
	if v.session == nil {
		return v.styles.Muted.Render("No document open")
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render(v.doc.Title()))
	b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  %s · v%d", v.doc.Kind, v.doc.Version)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", ruleWidth(v.width)))
	b.WriteString("\n\n")

	for i, spec := range v.schema {
		b.WriteString(v.renderField(i, spec))
		b.WriteString("\n")
	}

	if others := v.idleEditors(); len(others) > 0 {
		b.WriteString("\n")
		b.WriteString(v.styles.Presence.Render("Also here: " + strings.Join(others, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	v.bar.SetWidth(v.width)
	b.WriteString(v.bar.View())
	return b.String()
}

func (v *View) renderField(index int, spec domain.FieldSpec) string {
	if v.editing && index == v.selected {
		return "> " + v.input.View()
	}

	indicator := "  "
	label := v.styles.Label.Render(spec.Label + ":")
	if index == v.selected {
		indicator = "> "
		label = v.styles.Selected.Render(spec.Label + ":")
	}
	value, _ := v.doc.Field(spec.Name)
	text := services.FormatValue(value)
	if text == "" {
		text = v.styles.Muted.Render("(empty)")
	} else {
		text = v.styles.Normal.Render(truncate(text, v.width-len(spec.Label)-8))
	}

	line := indicator + label + " " + text
	if names := v.editorsIn(spec.Name); len(names) > 0 {
		line += "  " + v.styles.Presence.Render("✎ "+strings.Join(names, ", "))
	}
	return line
}

// editorsIn returns who else is focused on a field.
func (v *View) editorsIn(field string) []string {
	var names []string
	for _, e := range v.editors {
		if e.Field == field {
			names = append(names, displayName(e))
		}
	}
	return names
}

// idleEditors returns who else is connected without a focused field.
func (v *View) idleEditors() []string {
	var names []string
	for _, e := range v.editors {
		if e.Field == "" {
			names = append(names, displayName(e))
		}
	}
	return names
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.input.SetWidth(width)
	v.bar.SetWidth(width)
}

func displayName(e domain.PresenceEntry) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.UserID
}

// editText is the text a field's value starts from in the input.
func editText(value any) string {
	if list, ok := domain.NormalizeValue(value).([]string); ok {
		return strings.Join(list, ", ")
	}
	return services.FormatValue(value)
}

func truncate(s string, limit int) string {
	if limit < 10 {
		limit = 10
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

// ruleWidth sizes the separator under the title.
func ruleWidth(width int) int {
	return max(1, min(width-4, 60))
}
