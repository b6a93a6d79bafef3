package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

// HeaderStyle is used for section headers such as an issue title line.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// KeyStyle renders issue keys.
var KeyStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue)

// DurationStyle renders time spent.
var DurationStyle = lipgloss.NewStyle().
	Foreground(ColorGreen)

// SubtleStyle is used for authors, timestamps and comments.
var SubtleStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// StatusStyle returns a color-coded style for a Jira status name.
func StatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch strings.ToLower(status) {
	case "open", "to do", "backlog", "reopened":
		return base.Foreground(ColorBlue)
	case "in progress":
		return base.Foreground(ColorYellow)
	case "in review", "review":
		return base.Foreground(ColorMagenta)
	case "done", "closed", "resolved":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}
