package infobar

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xplanemap/packet"
)

const (
	barHeight = 7 // Total height of the component (including border)
)

// Model holds the info bar's state
type Model struct {
	width  int
	height int
	idle   string   // shown until the first fix arrives
	lines  []string // details of the last fix
}

// New creates a new info bar model
func New(idle string) Model {
	return Model{
		width:  80,
		height: barHeight,
		idle:   idle,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = barHeight

	case packet.Packet:
		fix, ok := msg.GPSFix()
		if !ok {
			return m, nil
		}
		m.lines = []string{
			"Refreshed at " + fix.Timestamp.Local().Format("15:04:05"),
			"Lat.: " + formatFloat(fix.Latitude) + "   Long.: " + formatFloat(fix.Longitude),
			"Course: " + formatFloat(fix.Course) + "°   Speed: " + formatFloat(fix.Speed) + " m/s",
			"Altitude: " + formatFloat(fix.Altitude) + " m",
			"From " + packet.Mode(msg.Sender),
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

	contentWidth := max(m.width-2-2, 0) // -border, -padding
	lines := m.lines
	if len(lines) == 0 {
		lines = []string{m.idle}
	}

	numLines := max(m.height-2, 0)
	var b strings.Builder
	for i := 0; i < numLines && i < len(lines); i++ {
		if i > 0 {
			b.WriteRune('\n')
		}
		line := []rune(lines[i])
		if len(line) > contentWidth {
			line = line[:contentWidth]
		}
		b.WriteString(string(line))
	}

	return style.Render(b.String())
}
