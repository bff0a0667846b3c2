package console

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")

	Base01 = lipgloss.Color("#6C7280") // приглушённый текст
	Base2  = lipgloss.Color("#ECEFF4")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(Base2).
			Background(Magenta).
			Bold(true).
			Padding(0, 2)

	tabStyle = lipgloss.NewStyle().
			Foreground(Base01).
			Padding(0, 2)

	tableBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan)

	statusStyle = lipgloss.NewStyle().
			Foreground(Green).
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Foreground(Yellow).
			Bold(true).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true).
			Padding(0, 1)
)
