package main

import (
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xplanemap/config"
	"xplanemap/packet"
	"xplanemap/ui/footer"
	"xplanemap/ui/header"
	"xplanemap/ui/infobar"
	mapview "xplanemap/ui/map"
	"xplanemap/ui/sidebar"
)

// Layout
const (
	sidebarWidth  = 20
	infobarHeight = 7
)

var errListenerStopped = errors.New("X-Plane listener stopped")

// model holds the application's state
type model struct {
	width  int
	height int

	headerModel  header.Model
	mapModel     mapview.Model
	infobarModel infobar.Model
	footerModel  footer.Model
	sidebarModel sidebar.Model

	packets <-chan packet.Packet

	err error
}

// newModel creates the starting model
func newModel(conf config.Config, addr string, packets <-chan packet.Packet, log *slog.Logger) (model, error) {
	mapMod, err := mapview.New(conf, log)
	if err != nil {
		return model{}, err
	}

	footerMod := footer.New(conf.Map.ShapePath)
	footerMod.SetZoom(mapMod.GetZoomLevel())
	footerMod.SetFollow(mapMod.Following())

	return model{
		width:        80,
		height:       60,
		headerModel:  header.New("listening on " + addr),
		mapModel:     mapMod,
		infobarModel: infobar.New("Waiting for X-Plane on " + addr),
		footerModel:  footerMod,
		sidebarModel: sidebar.New(),
		packets:      packets,
	}, nil
}

// listenForPackets waits for the next packet from the hub
func (m model) listenForPackets() tea.Cmd {
	return func() tea.Msg {
		pkt, ok := <-m.packets
		if !ok {
			return errListenerStopped
		}
		return pkt
	}
}

func (m model) Init() tea.Cmd {
	return m.listenForPackets()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.err != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
		return m, nil
	}

	var (
		headerCmd  tea.Cmd
		mapCmd     tea.Cmd
		infobarCmd tea.Cmd
		footerCmd  tea.Cmd
		sidebarCmd tea.Cmd
		cmds       []tea.Cmd
	)

	switch msg := msg.(type) {
	case packet.Packet:
		fix, isFix := msg.GPSFix()
		if isFix {
			m.sidebarModel.AddFix(msg.Sender, fix.Longitude, fix.Latitude)
		}
		m.footerModel.SetLastPacket(msg.Sender, isFix)

		m.mapModel, mapCmd = m.mapModel.Update(msg)
		m.infobarModel, infobarCmd = m.infobarModel.Update(msg)
		m.footerModel.SetZoom(m.mapModel.GetZoomLevel())
		cmds = append(cmds, mapCmd, infobarCmd, m.listenForPackets())

	case error:
		m.err = msg
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 1
		footerHeight := 1
		mainHeight := max(m.height-headerHeight-infobarHeight-footerHeight, 1)
		mapWidth := m.width - sidebarWidth

		m.headerModel, headerCmd = m.headerModel.Update(tea.WindowSizeMsg{Width: m.width, Height: headerHeight})
		m.sidebarModel, sidebarCmd = m.sidebarModel.Update(tea.WindowSizeMsg{Width: sidebarWidth, Height: mainHeight})
		m.mapModel, mapCmd = m.mapModel.Update(tea.WindowSizeMsg{Width: mapWidth, Height: mainHeight})
		m.infobarModel, infobarCmd = m.infobarModel.Update(tea.WindowSizeMsg{Width: m.width, Height: infobarHeight})
		m.footerModel, footerCmd = m.footerModel.Update(tea.WindowSizeMsg{Width: m.width, Height: footerHeight})

		cmds = append(cmds, headerCmd, sidebarCmd, mapCmd, infobarCmd, footerCmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		default:
			m.mapModel, mapCmd = m.mapModel.Update(msg)
			cmds = append(cmds, mapCmd)
			m.footerModel.SetZoom(m.mapModel.GetZoomLevel())
			m.footerModel.SetFollow(m.mapModel.Following())
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Border(lipgloss.DoubleBorder(), true).
			BorderForeground(lipgloss.Color("9")).
			Padding(1).
			Align(lipgloss.Center, lipgloss.Center)
		return errorStyle.Render(
			"Error:\n\n" + m.err.Error() +
				"\n\nPress any key to quit.",
		)
	}

	middleStack := lipgloss.JoinHorizontal(lipgloss.Top,
		m.sidebarModel.View(),
		m.mapModel.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerModel.View(),
		middleStack,
		m.infobarModel.View(),
		m.footerModel.View(),
	)
}
