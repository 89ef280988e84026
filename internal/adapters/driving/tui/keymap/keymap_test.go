package keymap

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()

	require.NotNil(t, km)
}

func TestDefaultKeyMap_QuitBinding(t *testing.T) {
	km := DefaultKeyMap()

	keys := km.Quit.Keys()
	assert.Contains(t, keys, "q")
	assert.Contains(t, keys, "ctrl+c")
}

func TestDefaultKeyMap_SaveBinding(t *testing.T) {
	km := DefaultKeyMap()

	assert.Equal(t, []string{"ctrl+s"}, km.Save.Keys())
	assert.Equal(t, "save", km.Save.Help().Desc)
}

func TestDefaultKeyMap_DoneAcceptsEnterAndEsc(t *testing.T) {
	km := DefaultKeyMap()

	assert.True(t, Matches("enter", km.Done))
	assert.True(t, Matches("esc", km.Done))
}

func TestKeyMap_EditorHelp(t *testing.T) {
	km := DefaultKeyMap()

	help := km.EditorHelp()

	require.Len(t, help, 5)
	assert.Equal(t, km.Back.Keys(), help[4].Keys())
}

func TestKeyMap_FullHelp(t *testing.T) {
	km := DefaultKeyMap()

	groups := km.FullHelp()

	assert.Len(t, groups, 3)
	for _, g := range groups {
		assert.NotEmpty(t, g)
	}
}

func TestMatches(t *testing.T) {
	binding := key.NewBinding(key.WithKeys("a", "b"))

	assert.True(t, Matches("a", binding))
	assert.True(t, Matches("b", binding))
	assert.False(t, Matches("c", binding))
}
