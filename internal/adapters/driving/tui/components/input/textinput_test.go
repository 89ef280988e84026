package input

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
)

func TestNewFieldInput(t *testing.T) {
	input := NewFieldInput(styles.DefaultStyles())

	require.NotNil(t, input)
	assert.Equal(t, "", input.Value())
	assert.False(t, input.Focused())
}

func TestNewFieldInput_NilStyles(t *testing.T) {
	input := NewFieldInput(nil)

	require.NotNil(t, input)
	assert.NotNil(t, input.styles)
}

func TestFieldInput_Init(t *testing.T) {
	assert.NotNil(t, NewFieldInput(nil).Init())
}

func TestFieldInput_Edit(t *testing.T) {
	input := NewFieldInput(nil)

	input.Edit("Title", "Draft", 0)

	assert.True(t, input.Focused())
	assert.Equal(t, "Draft", input.Value())
	assert.Equal(t, "Title", input.Label())
	assert.Equal(t, 5, input.Position())
}

func TestFieldInput_TypingAppends(t *testing.T) {
	input := NewFieldInput(nil)
	input.Edit("Title", "Draf", 0)

	updated, _ := input.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})

	assert.Equal(t, input, updated)
	assert.Equal(t, "Draft", input.Value())
	assert.Equal(t, 5, input.Position())
}

func TestFieldInput_Limit(t *testing.T) {
	input := NewFieldInput(nil)
	input.Edit("Code", "ab", 2)

	input.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})

	assert.Equal(t, "ab", input.Value())
}

func TestFieldInput_View(t *testing.T) {
	input := NewFieldInput(nil)
	input.Edit("Summary", "", 0)

	assert.Contains(t, input.View(), "Summary")
}

func TestFieldInput_Blur(t *testing.T) {
	input := NewFieldInput(nil)
	input.Edit("Title", "", 0)

	input.Blur()

	assert.False(t, input.Focused())
}

func TestFieldInput_SetWidth(t *testing.T) {
	input := NewFieldInput(nil)

	input.SetWidth(100)
	assert.Equal(t, 100, input.Width())
	assert.Equal(t, 76, input.textinput.Width)

	input.SetWidth(10)
	assert.Equal(t, 20, input.textinput.Width)
}
