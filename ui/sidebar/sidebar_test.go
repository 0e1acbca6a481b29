package sidebar

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFixKeepsMostRecentFirst(t *testing.T) {
	m := New()
	m.AddFix("1", 0, 0)
	m.AddFix("2", -122.4, 37.8)
	m.AddFix("1", 2.35, 48.85)

	require.Len(t, m.senders, 2)
	assert.Equal(t, "1", m.senders[0].sender)
	assert.Equal(t, "JN18eu", m.senders[0].grid)
	assert.Equal(t, "2", m.senders[1].sender)
	assert.Equal(t, "CM87tt", m.senders[1].grid)
}

func TestResizeTrimsList(t *testing.T) {
	m := New()
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		m.AddFix(s, 0, 0)
	}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 20, Height: 5})
	assert.Len(t, m.senders, 2)
	assert.Equal(t, "e", m.senders[0].sender)
}

func TestView(t *testing.T) {
	m := New()
	m.AddFix("2", -122.4, 37.8)
	view := m.View()
	assert.Contains(t, view, "Senders")
	assert.Contains(t, view, "CM87tt")
}
