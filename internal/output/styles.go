// Package output renders everything the console shows: command results in
// text or machine-readable form, incoming traffic colored by contact kind,
// and the prompt itself. Styling is composed unconditionally and stripped
// when color is off, so there is a single formatting path.
package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"meshpilot/pkg/pilottypes"
)

// Kind colors follow the established console convention: chat peers blue,
// repeaters magenta, rooms cyan, sensors yellow, channels green.
var (
	chatStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	repeaterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("201"))
	roomStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	sensorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	channelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// The unacknowledged-delivery marker shown in the prompt.
	markerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// KindStyle returns the display style for a contact kind.
func KindStyle(kind pilottypes.ContactKind) lipgloss.Style {
	switch kind {
	case pilottypes.KindRepeater:
		return repeaterStyle
	case pilottypes.KindRoom:
		return roomStyle
	case pilottypes.KindSensor:
		return sensorStyle
	default:
		return chatStyle
	}
}

// TargetStyle returns the display style for a resolved target.
func TargetStyle(t pilottypes.Target) lipgloss.Style {
	switch t.Kind {
	case pilottypes.TargetChannel:
		return channelStyle
	case pilottypes.TargetSelf:
		return selfStyle
	case pilottypes.TargetContact:
		if t.Contact != nil {
			return KindStyle(t.Contact.Kind)
		}
	}
	return chatStyle
}

// ColorSupported reports whether the terminal renders colors at all.
// Ascii-profile terminals force color off regardless of options.
func ColorSupported() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}
