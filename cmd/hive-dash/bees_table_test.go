package main

import (
	"strings"
	"testing"
	"time"
)

// TestBeesTable_EmptyState verifies the placeholder message when no bees
// are registered.
func TestBeesTable_EmptyState(t *testing.T) {
	theme := DefaultTheme()
	table := NewBeesTableModel(nil, time.Now())

	output := table.View(theme, NewStyles(theme))
	if !strings.Contains(output, "No bees registered") {
		t.Errorf("View() missing empty state message, got:\n%s", output)
	}
}

// TestBeesTable_RendersRows verifies headers, bee names, and the dash
// placeholder for bees with no current task.
func TestBeesTable_RendersRows(t *testing.T) {
	now := time.Now()
	bees := []BeeRow{
		{Name: "developer", Status: "busy", TaskID: "task-123", Workload: 33, Performance: 100, LastHeartbeat: now},
		{Name: "qa", Status: "idle", TaskID: "", Workload: 0, Performance: 95, LastHeartbeat: now},
	}

	theme := DefaultTheme()
	table := NewBeesTableModel(bees, now)
	output := table.View(theme, NewStyles(theme))

	for _, want := range []string{"Bee", "Status", "Current Task", "Load", "Perf", "Health", "developer", "qa", "task-123", "-", "33%", "95"} {
		if !strings.Contains(output, want) {
			t.Errorf("View() missing %q\ngot:\n%s", want, output)
		}
	}
}

// TestBeesTable_HealthBadge verifies the heartbeat-age thresholds: green
// inside 15s, amber up to 45s, red beyond, muted for offline bees.
func TestBeesTable_HealthBadge(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	theme := DefaultTheme()
	styles := NewStyles(theme)
	table := NewBeesTableModel(nil, now)

	tests := []struct {
		name string
		bee  BeeRow
		want string
	}{
		{
			name: "fresh heartbeat is green",
			bee:  BeeRow{Name: "developer", Status: "busy", LastHeartbeat: now.Add(-2 * time.Second)},
			want: styles.HealthGreen.Render("●"),
		},
		{
			name: "aging heartbeat is amber",
			bee:  BeeRow{Name: "qa", Status: "idle", LastHeartbeat: now.Add(-30 * time.Second)},
			want: styles.HealthAmber.Render("●"),
		},
		{
			name: "stale heartbeat is red",
			bee:  BeeRow{Name: "analyst", Status: "idle", LastHeartbeat: now.Add(-2 * time.Minute)},
			want: styles.HealthRed.Render("●"),
		},
		{
			name: "offline bee is muted regardless of age",
			bee:  BeeRow{Name: "intern", Status: "offline", LastHeartbeat: now},
			want: styles.Muted.Render("●"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.renderHealthBadge(tt.bee, styles)
			if got != tt.want {
				t.Errorf("renderHealthBadge() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestTruncate verifies the ASCII truncation helper.
func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a-very-long-task-identifier", 10, "a-very-..."},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
