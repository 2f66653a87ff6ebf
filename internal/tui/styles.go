package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/hearth/internal/model"
)

// Color palette
var (
	// Priority colors
	PriorityHighColor = lipgloss.Color("#FF6B6B") // Red
	PriorityLowColor  = lipgloss.Color("#4ECDC4") // Blue

	// Status colors
	Completed = lipgloss.Color("#95E1A3") // Green
	LiveOK    = lipgloss.Color("#95E1A3") // Green
	Saving    = lipgloss.Color("#FFE66D") // Yellow
	Failed    = lipgloss.Color("#FF6B6B") // Red
	Offline   = lipgloss.Color("#6C757D") // Gray

	// UI colors
	Primary   = lipgloss.Color("#4ECDC4")
	Secondary = lipgloss.Color("#6C757D")
	Surface   = lipgloss.Color("#16213e")
	Text      = lipgloss.Color("#FFFFFF")
	TextMuted = lipgloss.Color("#888888")
	Border    = lipgloss.Color("#333333")
	Highlight = lipgloss.Color("#4ECDC4")
	Today     = lipgloss.Color("#FFB347")
)

// Styles
var (
	// Header
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	// Sidebar with the days of the week
	SidebarStyle = lipgloss.NewStyle().
			Width(24).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Border).
			Padding(1, 1)

	DayItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	DayItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	TodayStyle = lipgloss.NewStyle().Foreground(Today).Bold(true)

	// Card list
	CardListStyle = lipgloss.NewStyle().
			Padding(1, 2)

	CardItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	CardItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	CardDoneStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Strikethrough(true).
			Padding(0, 1)

	// Card decorations
	TagStyle      = lipgloss.NewStyle().Foreground(Secondary)
	RoutineStyle  = lipgloss.NewStyle().Foreground(Primary)
	CompleteStyle = lipgloss.NewStyle().Foreground(Completed)

	// Priority badges
	PriorityHighStyle = lipgloss.NewStyle().Foreground(PriorityHighColor).Bold(true)
	PriorityLowStyle  = lipgloss.NewStyle().Foreground(PriorityLowColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Border)

	// Input modal
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	// Help text
	HelpStyle = lipgloss.NewStyle().
			Foreground(TextMuted)
)

// FormatPriority returns a badge for non-normal priorities
func FormatPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return PriorityHighStyle.Render("▲")
	case model.PriorityLow:
		return PriorityLowStyle.Render("▽")
	default:
		return " "
	}
}
