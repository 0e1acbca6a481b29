package sidebar

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	mapview "xplanemap/ui/map"
)

// entry is one sender and the grid square it was last seen in
type entry struct {
	sender string
	grid   string
}

// Model holds the sidebar's state
type Model struct {
	width   int
	height  int
	senders []entry // most recent first
}

// New creates a new sidebar model
func New() Model {
	return Model{
		width:  20,
		height: 24,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// maxEntries is the inner height minus the title line.
func (m Model) maxEntries() int {
	return max(m.height-3, 1)
}

// AddFix moves sender to the top of the list with its current square.
func (m *Model) AddFix(sender string, lon, lat float64) {
	for i, e := range m.senders {
		if e.sender == sender {
			m.senders = append(m.senders[:i], m.senders[i+1:]...)
			break
		}
	}
	m.senders = append([]entry{{sender: sender, grid: mapview.LatLonToGridSquare(lon, lat)}}, m.senders...)
	if len(m.senders) > m.maxEntries() {
		m.senders = m.senders[:m.maxEntries()]
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if len(m.senders) > m.maxEntries() {
			m.senders = m.senders[:m.maxEntries()]
		}
	}
	return m, nil
}

func (m Model) View() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Width(m.width - 2).
		Height(m.height - 2).
		Padding(0, 1)

	textWidth := max(m.width-2-2, 0) // -2 border, -2 padding
	header := lipgloss.NewStyle().
		Bold(true).
		Underline(true).
		Width(textWidth).
		Render("Senders")

	var b strings.Builder
	b.WriteString(header)

	// The box must not grow past its height.
	contentHeight := max(m.height-2-1, 0)
	for i, e := range m.senders {
		if i >= contentHeight {
			break
		}
		b.WriteRune('\n')
		b.WriteString(fmt.Sprintf("%.*s", textWidth, fmt.Sprintf("%-3s %s", e.sender, e.grid)))
	}

	return style.Render(b.String())
}
