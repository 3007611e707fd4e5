// Package main implements the hive-dash interactive dashboard.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// writeSnapshot fetches the colony state once and writes it as a single
// JSON object. Used by `hive-dash -snapshot` so scripts can read the same
// data the interactive view renders, without a TTY.
func writeSnapshot(w io.Writer, dbPath string) error {
	tasks, err := FetchTasks(dbPath)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	bees, err := FetchBees(dbPath)
	if err != nil {
		return fmt.Errorf("fetch bees: %w", err)
	}
	compliance, err := FetchCompliance(dbPath, complianceWindow)
	if err != nil {
		return fmt.Errorf("fetch compliance: %w", err)
	}

	snapshot := map[string]any{
		"tasks":      tasks,
		"bees":       bees,
		"compliance": compliance,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func main() {
	dbPath := resolveDBPath()

	if len(os.Args) > 1 && os.Args[1] == "-snapshot" {
		if err := writeSnapshot(os.Stdout, dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(newModel(dbPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
