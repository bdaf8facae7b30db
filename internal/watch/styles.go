package watch

import (
	"github.com/charmbracelet/lipgloss"

	"reliefdesk/internal/domain/notification"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Background(colorBlue).Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().Foreground(colorWhite).Background(colorSubtle).Padding(0, 1)

	itemStyle = lipgloss.NewStyle().PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(colorBlue).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorBlue)

	readStyle = lipgloss.NewStyle().Foreground(colorGray)

	helpStyle = lipgloss.NewStyle().Foreground(colorGray).Italic(true)

	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

func priorityStyle(p notification.Priority) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(8)
	switch p {
	case notification.PriorityUrgent:
		return base.Foreground(colorRed)
	case notification.PriorityHigh:
		return base.Foreground(colorYellow)
	case notification.PriorityLow:
		return base.Foreground(colorGray)
	default:
		return base.Foreground(colorGreen)
	}
}
