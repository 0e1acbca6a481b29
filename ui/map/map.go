// Package mapview draws the moving map: shapefile outlines, the home
// station and every aircraft heard from.
package mapview

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonas-p/go-shp"

	"xplanemap/config"
	"xplanemap/logging"
	"xplanemap/packet"
	"xplanemap/xplane"
)

// Constants for Panning and Zooming
const (
	panFactor  = 0.1
	zoomFactor = 1.2
	maxTrail   = 200
)

// worldBounds is used when no shapefile is configured.
var worldBounds = shp.Box{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

type point struct {
	lon, lat float64
}

// aircraft is the latest fix from one sender plus where it has been.
type aircraft struct {
	sender string
	fix    xplane.GPSFix
	trail  []point
}

// Model holds the map's state
type Model struct {
	width  int
	height int

	mapPolygons    []*shp.Polygon
	originalBounds shp.Box
	viewBounds     shp.Box

	stationLon    float64
	stationLat    float64
	stationExists bool

	follow   bool
	aircraft []*aircraft // most recently heard last
}

// loadMapData reads the shapefile
func loadMapData(path string) ([]*shp.Polygon, shp.Box, error) {
	shapeFile, err := shp.Open(path)
	if err != nil {
		return nil, shp.Box{}, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shapeFile.Close()

	var polygons []*shp.Polygon
	bounds := shp.Box{MinX: 1e9, MinY: 1e9, MaxX: -1e9, MaxY: -1e9}

	for shapeFile.Next() {
		_, shape := shapeFile.Shape()
		polygon, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		polygons = append(polygons, polygon)
		bounds.Extend(polygon.BBox())
	}

	if len(polygons) == 0 {
		return nil, shp.Box{}, fmt.Errorf("no polygons found in shapefile")
	}
	return polygons, bounds, nil
}

// New creates a new map model. Without a shapefile the map shows the whole
// world with no outlines.
func New(conf config.Config, logger *slog.Logger) (Model, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	m := Model{
		originalBounds: worldBounds,
		viewBounds:     worldBounds,
		width:          80,
		height:         23,
		follow:         conf.Map.Follow,
	}

	if conf.Map.ShapePath != "" {
		polygons, bounds, err := loadMapData(conf.Map.ShapePath)
		if err != nil {
			return Model{}, err
		}
		m.mapPolygons = polygons
		m.originalBounds = bounds
		m.viewBounds = bounds
	}

	stationGrid := conf.Station.GridSquare
	if stationGrid != "" {
		lon, lat, err := GridSquareToLatLon(stationGrid)
		if err != nil {
			logger.Warn("Could not parse station gridsquare",
				slog.String("gridsquare", stationGrid),
				logging.Error(err),
			)
		} else {
			m.stationLon = lon
			m.stationLat = lat
			m.stationExists = true
		}
	}

	if m.stationExists && conf.Map.DefaultZoom > 1.0 {
		m.setCenterAndZoom(m.stationLon, m.stationLat, conf.Map.DefaultZoom)
	} else if conf.Map.DefaultZoom > 1.0 {
		m.zoomByFactor(1 / conf.Map.DefaultZoom)
	}
	return m, nil
}

func (m Model) Init() tea.Cmd { return nil }

func (m *Model) setCenterAndZoom(lon, lat, zoomLevel float64) {
	newWidth := (m.originalBounds.MaxX - m.originalBounds.MinX) / zoomLevel
	newHeight := (m.originalBounds.MaxY - m.originalBounds.MinY) / zoomLevel
	m.viewBounds.MinX = lon - (newWidth / 2)
	m.viewBounds.MaxX = lon + (newWidth / 2)
	m.viewBounds.MinY = lat - (newHeight / 2)
	m.viewBounds.MaxY = lat + (newHeight / 2)
}

func (m *Model) zoomByFactor(factor float64) {
	centerX := (m.viewBounds.MinX + m.viewBounds.MaxX) / 2
	centerY := (m.viewBounds.MinY + m.viewBounds.MaxY) / 2
	width := m.viewBounds.MaxX - m.viewBounds.MinX
	height := m.viewBounds.MaxY - m.viewBounds.MinY
	newWidth := width * factor
	newHeight := height * factor
	if newWidth > (m.originalBounds.MaxX-m.originalBounds.MinX) || newHeight > (m.originalBounds.MaxY-m.originalBounds.MinY) {
		m.viewBounds = m.originalBounds
		return
	}
	m.viewBounds.MinX = centerX - (newWidth / 2)
	m.viewBounds.MaxX = centerX + (newWidth / 2)
	m.viewBounds.MinY = centerY - (newHeight / 2)
	m.viewBounds.MaxY = centerY + (newHeight / 2)
}

func (m *Model) pan(dx, dy float64) {
	panX := (m.viewBounds.MaxX - m.viewBounds.MinX) * dx
	panY := (m.viewBounds.MaxY - m.viewBounds.MinY) * dy
	m.viewBounds.MinX += panX
	m.viewBounds.MaxX += panX
	m.viewBounds.MinY += panY
	m.viewBounds.MaxY += panY
}

// recenter moves the view to lon/lat keeping the current zoom.
func (m *Model) recenter(lon, lat float64) {
	m.setCenterAndZoom(lon, lat, m.GetZoomLevel())
}

func (m Model) GetZoomLevel() float64 {
	if m.viewBounds.MaxX == m.viewBounds.MinX {
		return 1.0
	}
	return (m.originalBounds.MaxX - m.originalBounds.MinX) / (m.viewBounds.MaxX - m.viewBounds.MinX)
}

// Following reports whether the view tracks the latest fix.
func (m Model) Following() bool {
	return m.follow
}

// track records a fix, moving its sender to the end of the draw order.
func (m *Model) track(sender string, fix xplane.GPSFix) {
	var ac *aircraft
	for i, a := range m.aircraft {
		if a.sender == sender {
			ac = a
			m.aircraft = append(m.aircraft[:i], m.aircraft[i+1:]...)
			break
		}
	}
	if ac == nil {
		ac = &aircraft{sender: sender}
	} else {
		ac.trail = append(ac.trail, point{lon: ac.fix.Longitude, lat: ac.fix.Latitude})
		if len(ac.trail) > maxTrail {
			ac.trail = ac.trail[len(ac.trail)-maxTrail:]
		}
	}
	ac.fix = fix
	m.aircraft = append(m.aircraft, ac)
}

// Update function
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case packet.Packet:
		fix, ok := msg.GPSFix()
		if !ok {
			return m, nil
		}
		m.track(msg.Sender, fix)
		if m.follow {
			m.recenter(fix.Longitude, fix.Latitude)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "k", "up":
			m.follow = false
			m.pan(0, panFactor)
		case "l", "down":
			m.follow = false
			m.pan(0, -panFactor)
		case "j", "left":
			m.follow = false
			m.pan(-panFactor, 0)
		case ";", "right":
			m.follow = false
			m.pan(panFactor, 0)
		case "K", "+":
			m.zoomByFactor(1 / zoomFactor)
		case "L", "-":
			m.zoomByFactor(zoomFactor)
		case "f":
			m.follow = !m.follow
			if m.follow && len(m.aircraft) > 0 {
				last := m.aircraft[len(m.aircraft)-1].fix
				m.recenter(last.Longitude, last.Latitude)
			}
		case "h":
			if m.stationExists {
				m.follow = false
				m.recenter(m.stationLon, m.stationLat)
			}
		case "r":
			m.viewBounds = m.originalBounds
		}
	}
	return m, nil
}

// project converts lon/lat to terminal x/y coordinates
func (m Model) project(lon, lat float64, viewWidth, viewHeight int) (int, int) {
	spanX := m.viewBounds.MaxX - m.viewBounds.MinX
	spanY := m.viewBounds.MaxY - m.viewBounds.MinY
	if spanX == 0 {
		spanX = 1e-6
	}
	if spanY == 0 {
		spanY = 1e-6
	}
	x := (lon - m.viewBounds.MinX) / spanX
	y := (m.viewBounds.MaxY - lat) / spanY // Invert Y-axis for screen coords
	return int(x * float64(viewWidth)), int(y * float64(viewHeight))
}

type canvas struct {
	grid          [][]rune
	width, height int
}

func newCanvas(width, height int) canvas {
	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	return canvas{grid: grid, width: width, height: height}
}

func (c canvas) inside(x, y int) bool {
	return x >= 0 && x < c.width && y >= 0 && y < c.height
}

func (c canvas) set(x, y int, r rune) {
	if c.inside(x, y) {
		c.grid[y][x] = r
	}
}

// label writes text centered under x, only over blank cells.
func (c canvas) label(x, y int, text string) {
	runes := []rune(text)
	start := x - len(runes)/2
	for i, r := range runes {
		if c.inside(start+i, y) && c.grid[y][start+i] == ' ' {
			c.grid[y][start+i] = r
		}
	}
}

func (c canvas) String() string {
	var b strings.Builder
	for _, row := range c.grid {
		b.WriteString(string(row))
		b.WriteRune('\n')
	}
	return b.String()
}

// renderMapViewport
func (m Model) renderMapViewport(viewWidth, viewHeight int) string {
	if viewWidth <= 0 {
		viewWidth = 1
	}
	if viewHeight <= 0 {
		viewHeight = 1
	}
	c := newCanvas(viewWidth, viewHeight)

	// 1. Draw the map
	for _, polygon := range m.mapPolygons {
		polyBounds := polygon.BBox()
		if polyBounds.MaxX < m.viewBounds.MinX || polyBounds.MinX > m.viewBounds.MaxX ||
			polyBounds.MaxY < m.viewBounds.MinY || polyBounds.MinY > m.viewBounds.MaxY {
			continue
		}
		for _, p := range polygon.Points {
			x, y := m.project(p.X, p.Y, viewWidth, viewHeight)
			c.set(x, y, '.')
		}
	}

	// 2. Trails
	for _, ac := range m.aircraft {
		for _, p := range ac.trail {
			x, y := m.project(p.lon, p.lat, viewWidth, viewHeight)
			c.set(x, y, '·')
		}
	}

	// 3. Plot the home station "house"
	if m.stationExists {
		x, y := m.project(m.stationLon, m.stationLat, viewWidth, viewHeight)
		c.set(x, y, 'H')
	}

	// 4. Aircraft and their sender tags; the latest one gets the plane glyph.
	for i, ac := range m.aircraft {
		x, y := m.project(ac.fix.Longitude, ac.fix.Latitude, viewWidth, viewHeight)
		if !c.inside(x, y) {
			continue
		}
		glyph := '*'
		if i == len(m.aircraft)-1 {
			glyph = '✈'
		}
		c.set(x, y, glyph)
		c.label(x, y+1, ac.sender)
	}

	return c.String()
}

// View function
func (m Model) View() string {
	mapStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Width(m.width - 2).
		Height(m.height - 2)

	hBorders := mapStyle.GetBorderLeftSize() + mapStyle.GetBorderRightSize()
	vBorders := mapStyle.GetBorderTopSize() + mapStyle.GetBorderBottomSize()

	mapViewWidth := mapStyle.GetWidth() - hBorders
	mapViewHeight := mapStyle.GetHeight() - vBorders

	return mapStyle.Render(m.renderMapViewport(mapViewWidth, mapViewHeight))
}
