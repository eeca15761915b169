package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/reading"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// swatch renders a small block in the device's chart color.
func swatch(deviceID string) string {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(device.Color(deviceID))).
		Render("  ")
}

// weatherStyle colors a weather band.
func weatherStyle(w reading.Weather) lipgloss.Style {
	switch w {
	case reading.WeatherClear:
		return okStyle
	case reading.WeatherRain:
		return warnStyle
	default:
		return mutedStyle
	}
}
