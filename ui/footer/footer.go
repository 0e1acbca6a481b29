package footer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the footer's state
type Model struct {
	width      int
	mapSource  string
	zoom       float64
	follow     bool
	lastSender string
	fixes      int
	others     int
}

// New creates a new footer model. mapSource names the shapefile, or is
// empty when the map has no outlines.
func New(mapSource string) Model {
	if mapSource == "" {
		mapSource = "none"
	}
	return Model{
		width:     80,
		mapSource: mapSource,
		zoom:      1.0,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m *Model) SetZoom(zoom float64) {
	m.zoom = zoom
}

func (m *Model) SetFollow(follow bool) {
	m.follow = follow
}

// SetLastPacket records a received message and whether it was a GPS fix.
func (m *Model) SetLastPacket(sender string, isFix bool) {
	m.lastSender = sender
	if isFix {
		m.fixes++
	} else {
		m.others++
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m Model) View() string {
	follow := "off"
	if m.follow {
		follow = "on"
	}
	last := m.lastSender
	if last == "" {
		last = "-"
	}

	parts := []string{
		fmt.Sprintf("Zoom: %.1fx", m.zoom),
		"Follow: " + follow,
		"Last: " + last,
		fmt.Sprintf("Fixes: %d", m.fixes),
		fmt.Sprintf("Other: %d", m.others),
		"Map: " + m.mapSource,
		"q quit  f follow  h home  r reset",
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Width(m.width).
		MaxHeight(1)

	return style.Render(strings.Join(parts, " | "))
}
