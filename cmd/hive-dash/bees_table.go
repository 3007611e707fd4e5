package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
)

// loadBarWidth is the rendered width of the workload bar cell.
const loadBarWidth = 12

// BeesTableModel holds the bees table state.
type BeesTableModel struct {
	bees []BeeRow
	now  time.Time
	bar  progress.Model
}

// NewBeesTableModel creates a new bees table model. now anchors the
// heartbeat-age health badge.
func NewBeesTableModel(bees []BeeRow, now time.Time) BeesTableModel {
	return BeesTableModel{
		bees: bees,
		now:  now,
		bar:  progress.New(progress.WithWidth(loadBarWidth), progress.WithoutPercentage()),
	}
}

// View renders the bees table.
func (bt BeesTableModel) View(theme Theme, styles Styles) string {
	if len(bt.bees) == 0 {
		return renderEmptyBeesState(styles)
	}

	return bt.renderBeesTable(theme, styles)
}

// renderEmptyBeesState renders a message when no bees are registered.
func renderEmptyBeesState(styles Styles) string {
	msg := "No bees registered. Run `hive init` to seed the colony."
	return styles.Centered.Render(styles.Muted.Render(msg))
}

// renderBeesTable renders the full bees table with headers and rows.
func (bt BeesTableModel) renderBeesTable(theme Theme, styles Styles) string {
	var sb strings.Builder

	// Table headers
	headers := []string{"Bee", "Status", "Current Task", "Load", "Perf", "Health"}
	headerWidths := []int{16, 12, 38, loadBarWidth + 5, 6, 8}

	// Render header row — use Col base style with .Width() applied per column.
	headerParts := make([]string, 0, len(headers))
	for i, header := range headers {
		style := styles.Col.
			Width(headerWidths[i]).
			Bold(true).
			Foreground(theme.Primary)
		headerParts = append(headerParts, style.Render(header))
	}
	sb.WriteString(strings.Join(headerParts, " "))
	sb.WriteString("\n")

	// Render separator
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	// Render bee rows
	for _, bee := range bt.bees {
		row := bt.renderBeeRow(bee, headerWidths, styles)
		sb.WriteString(row)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderBeeRow renders a single bee row in the table.
func (bt BeesTableModel) renderBeeRow(bee BeeRow, widths []int, styles Styles) string {
	name := truncate(bee.Name, widths[0])
	status := truncate(bee.Status, widths[1])

	// Current task (show '-' if no assignment)
	taskID := "-"
	if bee.TaskID != "" {
		taskID = bee.TaskID
	}
	taskID = truncate(taskID, widths[2])

	// Workload bar plus the number, score is 0-100.
	load := fmt.Sprintf("%s %3.0f%%", bt.bar.ViewAs(bee.Workload/100), bee.Workload)
	perf := fmt.Sprintf("%.0f", bee.Performance)

	healthBadge := bt.renderHealthBadge(bee, styles)

	cells := []string{
		styles.Col.Width(widths[0]).Render(name),
		styles.Col.Width(widths[1]).Render(status),
		styles.Col.Width(widths[2]).Render(taskID),
		styles.Col.Width(widths[3]).Render(load),
		styles.Col.Width(widths[4]).Render(perf),
		styles.Col.Width(widths[5]).Render(healthBadge),
	}

	return strings.Join(cells, " ")
}

// renderHealthBadge renders the health indicator based on heartbeat age,
// assuming the default 5s heartbeat cadence. Green inside the scheduler's
// three-interval staleness cutoff (15s), amber up to three times that, red
// beyond. Offline bees render muted regardless of age.
func (bt BeesTableModel) renderHealthBadge(bee BeeRow, styles Styles) string {
	if bee.Status == "offline" {
		return styles.Muted.Render("●")
	}

	age := bt.now.Sub(bee.LastHeartbeat)
	healthStyle := styles.HealthRed
	switch {
	case age < 15*time.Second:
		healthStyle = styles.HealthGreen
	case age <= 45*time.Second:
		healthStyle = styles.HealthAmber
	}

	return healthStyle.Render("●")
}

// truncate shortens s to maxLen runes of ASCII, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
