package main

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual styling for the hive dashboard.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
}

// DefaultTheme returns the default theme for hive dash.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("12"),  // Blue
		Secondary: lipgloss.Color("14"),  // Cyan
		Success:   lipgloss.Color("10"),  // Green
		Warning:   lipgloss.Color("11"),  // Yellow
		Error:     lipgloss.Color("9"),   // Red
		Muted:     lipgloss.Color("240"), // Gray
	}
}

// Styles holds the pre-built lipgloss styles shared by the board and the
// bees table. Build once per render with NewStyles; lipgloss styles are
// value types, so per-cell tweaks like .Width() return copies.
type Styles struct {
	Title        lipgloss.Style
	Muted        lipgloss.Style
	Col          lipgloss.Style
	Centered     lipgloss.Style
	HealthGreen  lipgloss.Style
	HealthAmber  lipgloss.Style
	HealthRed    lipgloss.Style
	Card         lipgloss.Style
	CardSelected lipgloss.Style
	CardID       lipgloss.Style
	Column       lipgloss.Style
	ColumnHeader lipgloss.Style
}

// NewStyles derives the shared styles from a theme.
func NewStyles(theme Theme) Styles {
	const colWidth = 30

	return Styles{
		Title:        lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Muted:        lipgloss.NewStyle().Foreground(theme.Muted),
		Col:          lipgloss.NewStyle(),
		Centered:     lipgloss.NewStyle().Padding(1, 2),
		HealthGreen:  lipgloss.NewStyle().Foreground(theme.Success),
		HealthAmber:  lipgloss.NewStyle().Foreground(theme.Warning),
		HealthRed:    lipgloss.NewStyle().Foreground(theme.Error),
		Card:         lipgloss.NewStyle().Width(colWidth - 2).Padding(0, 1),
		CardSelected: lipgloss.NewStyle().Width(colWidth - 2).Padding(0, 1).Bold(true).Foreground(theme.Secondary),
		CardID:       lipgloss.NewStyle().Foreground(theme.Muted),
		Column:       lipgloss.NewStyle().Width(colWidth).Padding(0, 1),
		ColumnHeader: lipgloss.NewStyle().Bold(true).Width(colWidth).Align(lipgloss.Center).BorderBottom(true).BorderStyle(lipgloss.NormalBorder()),
	}
}
