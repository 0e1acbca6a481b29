package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xplanemap/config"
	"xplanemap/packet"
	"xplanemap/xplane"
)

func TestModelConsumesPackets(t *testing.T) {
	ch := make(chan packet.Packet, 1)
	m, err := newModel(config.Default(), "0.0.0.0:49002", ch, nil)
	require.NoError(t, err)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(model)

	ch <- packet.Packet{Sender: "2", Message: xplane.GPSFix{Longitude: -122.4, Latitude: 37.8, Speed: 12.3}}
	msg := m.Init()()
	pkt, ok := msg.(packet.Packet)
	require.True(t, ok)

	updated, cmd := m.Update(pkt)
	m = updated.(model)
	assert.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "XPlaneMap")
	assert.Contains(t, view, "CM87tt")
	assert.Contains(t, view, "Speed: 12.3 m/s")
	assert.Contains(t, view, "Fixes: 1")
}

func TestModelReportsClosedListener(t *testing.T) {
	ch := make(chan packet.Packet)
	close(ch)
	m, err := newModel(config.Default(), "0.0.0.0:49002", ch, nil)
	require.NoError(t, err)

	msg := m.listenForPackets()()
	assert.Equal(t, errListenerStopped, msg)

	updated, _ := m.Update(msg)
	m = updated.(model)
	assert.Contains(t, m.View(), errListenerStopped.Error())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelQuitKey(t *testing.T) {
	m, err := newModel(config.Default(), "0.0.0.0:49002", make(chan packet.Packet), nil)
	require.NoError(t, err)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
