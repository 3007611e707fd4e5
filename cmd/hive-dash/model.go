package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickMsg is sent by Bubble Tea on every tick interval.
// Used to trigger periodic data refresh from the colony database.
type tickMsg time.Time

// tasksMsg carries fetched tasks. nil means the fetch failed; the model
// keeps the last good board.
type tasksMsg []TaskRow

// beesMsg carries fetched bee states. nil means the database is unreadable.
type beesMsg []BeeRow

// complianceMsg carries the compliance counts over the audit window.
type complianceMsg ComplianceStats

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchTasksCmd returns a tea.Cmd that fetches tasks from the colony database.
func fetchTasksCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		tasks, _ := FetchTasks(dbPath)
		return tasksMsg(tasks)
	}
}

// fetchBeesCmd returns a tea.Cmd that fetches bee states from the colony database.
func fetchBeesCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		bees, _ := FetchBees(dbPath)
		return beesMsg(bees)
	}
}

// fetchComplianceCmd returns a tea.Cmd that fetches the compliance window counts.
func fetchComplianceCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		stats, _ := FetchCompliance(dbPath, complianceWindow)
		return complianceMsg(stats)
	}
}

// ViewType represents different views in the dashboard.
type ViewType int

const (
	// BoardView shows the task board.
	BoardView ViewType = iota
	// BeesView shows the bee status table.
	BeesView
)

// Model is the Bubble Tea model for the hive dashboard.
type Model struct {
	activeView ViewType
	dbPath     string
	dbHealthy  bool
	loaded     bool // first fetch has landed

	// Data fetched from the colony database
	tasks      []TaskRow
	bees       []BeeRow
	compliance ComplianceStats

	// Aggregate counts for the status bar
	pendingCount    int
	inProgressCount int

	// UI state
	width   int
	height  int
	spinner spinner.Model

	// Board navigation state
	activeCol  int // Index of the active column (0-3: Pending, In Progress, Done, Halted)
	activeTask int // Index of the active task within the current column
}

// newModel creates a new Model initialized with BoardView active.
func newModel(dbPath string) Model {
	return Model{
		activeView: BoardView,
		dbPath:     dbPath,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(DefaultTheme().Secondary)),
		),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := append(m.refetchCmds(), tickCmd(), m.spinner.Tick)
	if watch := watchColonyDir(filepath.Dir(m.dbPath)); watch != nil {
		cmds = append(cmds, watch)
	}
	return tea.Batch(cmds...)
}

// refetchCmds returns the commands that reload every data source.
func (m Model) refetchCmds() []tea.Cmd {
	return []tea.Cmd{
		fetchTasksCmd(m.dbPath),
		fetchBeesCmd(m.dbPath),
		fetchComplianceCmd(m.dbPath),
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tasksMsg:
		if msg == nil {
			break
		}
		m.tasks = []TaskRow(msg)
		m.pendingCount = 0
		m.inProgressCount = 0
		for _, t := range m.tasks {
			switch t.Status {
			case "pending":
				m.pendingCount++
			case "in_progress":
				m.inProgressCount++
			}
		}
		m = m.clampCursor()

	case beesMsg:
		m.loaded = true
		if msg == nil {
			m.dbHealthy = false
			m.bees = nil
		} else {
			m.dbHealthy = true
			m.bees = []BeeRow(msg)
		}

	case complianceMsg:
		m.compliance = ComplianceStats(msg)

	case spinner.TickMsg:
		// The spinner only runs until the first fetch lands.
		if m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(append(m.refetchCmds(), tickCmd())...)

	case fsChangeMsg:
		// A write landed in the database directory: refetch now and re-arm
		// the single-shot watcher.
		cmds := m.refetchCmds()
		if watch := watchColonyDir(filepath.Dir(m.dbPath)); watch != nil {
			cmds = append(cmds, watch)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// handleKeyPress processes keyboard input and returns updated model with optional command.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" || key == "q" {
		return m, tea.Quit
	}

	switch m.activeView {
	case BeesView:
		return m.handleBeesViewKeys(key)
	default: // BoardView
		return m.handleBoardViewKeys(key)
	}
}

// handleBeesViewKeys processes keyboard input in BeesView.
func (m Model) handleBeesViewKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc", "b":
		m.activeView = BoardView
	}
	return m, nil
}

// handleBoardViewKeys processes keyboard input in BoardView.
func (m Model) handleBoardViewKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "b":
		m.activeView = BeesView
	case "h", "left", "shift+tab":
		m = m.moveToPrevColumn()
	case "l", "right", "tab":
		m = m.moveToNextColumn()
	case "j", "down":
		m = m.moveToNextTask()
	case "k", "up":
		m = m.moveToPrevTask()
	}
	return m, nil
}

// moveToNextColumn advances the cursor one column right, clamped to the board.
func (m Model) moveToNextColumn() Model {
	if m.activeCol < 3 {
		m.activeCol++
	}
	return m.clampCursor()
}

// moveToPrevColumn moves the cursor one column left, clamped to the board.
func (m Model) moveToPrevColumn() Model {
	if m.activeCol > 0 {
		m.activeCol--
	}
	return m.clampCursor()
}

// moveToNextTask advances the cursor one card down within the current column.
func (m Model) moveToNextTask() Model {
	board := NewBoardModel(m.tasks)
	if m.activeTask < len(board.column(m.activeCol))-1 {
		m.activeTask++
	}
	return m
}

// moveToPrevTask moves the cursor one card up within the current column.
func (m Model) moveToPrevTask() Model {
	if m.activeTask > 0 {
		m.activeTask--
	}
	return m
}

// clampCursor keeps the task cursor inside the active column after the
// board contents or the active column change.
func (m Model) clampCursor() Model {
	n := len(NewBoardModel(m.tasks).column(m.activeCol))
	if m.activeTask >= n {
		m.activeTask = n - 1
	}
	if m.activeTask < 0 {
		m.activeTask = 0
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	theme := DefaultTheme()
	styles := NewStyles(theme)

	if !m.loaded {
		return m.spinner.View() + " loading colony state..."
	}

	statusBar := m.renderStatusBar(theme)

	switch m.activeView {
	case BeesView:
		table := NewBeesTableModel(m.bees, time.Now())
		help := styles.Muted.Render("esc: board  q: quit")
		return statusBar + "\n" + table.View(theme, styles) + "\n" + help
	default:
		board := NewBoardModel(m.tasks)
		help := styles.Muted.Render("b: bees  h/l/j/k: move  q: quit")
		return statusBar + "\n" + board.RenderWithCursor(m.activeCol, m.activeTask, theme, styles) + "\n" + help
	}
}

// renderStatusBar renders the status bar with database health, bee count,
// task counts, and the compliance rate.
func (m Model) renderStatusBar(theme Theme) string {
	var dbStatus string
	if m.dbHealthy {
		dbStatus = lipgloss.NewStyle().Foreground(theme.Success).Render("colony: online")
	} else {
		dbStatus = lipgloss.NewStyle().Foreground(theme.Error).Render("colony: offline")
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		dbStatus,
		lipgloss.NewStyle().Render(" | Bees: "),
		lipgloss.NewStyle().Foreground(theme.Primary).Render(fmt.Sprintf("%d", len(m.bees))),
		lipgloss.NewStyle().Render(" | Pending: "),
		lipgloss.NewStyle().Foreground(theme.Warning).Render(fmt.Sprintf("%d", m.pendingCount)),
		lipgloss.NewStyle().Render(" | In Progress: "),
		lipgloss.NewStyle().Foreground(theme.Success).Render(fmt.Sprintf("%d", m.inProgressCount)),
		lipgloss.NewStyle().Render(" | Compliance: "),
		m.renderComplianceCell(theme),
	)
}

// renderComplianceCell renders the compliance percentage, green at or above
// the monitor's default 95% threshold, red below, muted n/a with no traffic.
func (m Model) renderComplianceCell(theme Theme) string {
	if m.compliance.Total == 0 {
		return lipgloss.NewStyle().Foreground(theme.Muted).Render("n/a")
	}
	pct := 100 * float64(m.compliance.Compliant) / float64(m.compliance.Total)
	color := theme.Success
	if pct < 95 {
		color = theme.Error
	}
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%.1f%%", pct))
}
