package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// BoardModel holds the kanban-style board state with task columns.
type BoardModel struct {
	columns []boardColumn
}

// boardColumn represents a single column in the board view.
type boardColumn struct {
	title      string
	tasks      []TaskRow
	totalCount int // Total count of tasks (may exceed len(tasks) if limited)
}

// columnForStatus returns the board column title for a given task status.
func columnForStatus(status string) string {
	switch status {
	case "in_progress":
		return "In Progress"
	case "completed":
		return "Done"
	case "failed", "cancelled":
		return "Halted"
	default:
		return "Pending"
	}
}

// NewBoardModel groups tasks into 4 columns by status:
//   - "Pending"     = status "pending"
//   - "In Progress" = status "in_progress"
//   - "Done"        = status "completed" (limited to 10)
//   - "Halted"      = status "failed" or "cancelled"
func NewBoardModel(tasks []TaskRow) BoardModel {
	buckets := map[string][]TaskRow{
		"Pending":     {},
		"In Progress": {},
		"Done":        {},
		"Halted":      {},
	}

	for _, t := range tasks {
		col := columnForStatus(t.Status)
		buckets[col] = append(buckets[col], t)
	}

	// Preserve column ordering: Pending, In Progress, Done, Halted.
	titles := []string{"Pending", "In Progress", "Done", "Halted"}
	columns := make([]boardColumn, 0, len(titles))
	for _, title := range titles {
		tasksInCol := buckets[title]
		totalCount := len(tasksInCol)

		// Limit Done column to 10 tasks
		if title == "Done" && len(tasksInCol) > 10 {
			tasksInCol = tasksInCol[:10]
		}

		columns = append(columns, boardColumn{
			title:      title,
			tasks:      tasksInCol,
			totalCount: totalCount,
		})
	}

	return BoardModel{columns: columns}
}

// column returns the tasks in column i, or nil when i is out of range.
func (bm BoardModel) column(i int) []TaskRow {
	if i < 0 || i >= len(bm.columns) {
		return nil
	}
	return bm.columns[i].tasks
}

// Render renders the board columns side-by-side with no cursor.
func (bm BoardModel) Render(theme Theme, styles Styles) string {
	return bm.RenderWithCursor(-1, -1, theme, styles)
}

// RenderWithCursor renders the board with the card at (activeCol, activeTask)
// highlighted. Pass -1, -1 for no cursor.
func (bm BoardModel) RenderWithCursor(activeCol, activeTask int, theme Theme, styles Styles) string {
	rendered := make([]string, 0, len(bm.columns))
	for i, col := range bm.columns {
		// Use Success (green) color for Done column, Primary (blue) for others
		headerColor := theme.Primary
		if col.title == "Done" {
			headerColor = theme.Success
		}
		headerStyle := styles.ColumnHeader.Foreground(headerColor)

		// Format header with visible/total count for Done column
		headerText := col.title
		if col.title == "Done" && col.totalCount > 0 {
			headerText = fmt.Sprintf("%s (%d/%d)", col.title, len(col.tasks), col.totalCount)
		}

		header := headerStyle.Render(headerText)

		var cardsBuilder strings.Builder
		for j, t := range col.tasks {
			cardStyle := styles.Card
			if i == activeCol && j == activeTask {
				cardStyle = styles.CardSelected
			}
			card := cardStyle.Render(
				fmt.Sprintf("%s\n%s", t.Title, styles.CardID.Render(t.ID)),
			)
			cardsBuilder.WriteString(card)
			cardsBuilder.WriteString("\n")
		}
		cards := cardsBuilder.String()

		full := styles.Column.Render(header + "\n" + cards)
		rendered = append(rendered, full)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
