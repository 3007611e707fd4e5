package integration_test

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildHiveBinary compiles the hive binary into a temp directory and
// returns its path. Build failure is a hard fatal (not a skip), so CI
// catches regressions immediately.
func buildHiveBinary(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping CLI binary smoke tests in short mode")
	}

	root := integrationProjectRoot(t)

	binPath := filepath.Join(t.TempDir(), "hive")

	build := exec.Command("go", "build", "-o", binPath, "./cmd/hive") //nolint:gosec // test-only, args are constant
	build.Dir = root
	out, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build ./cmd/hive failed: %v\n%s", err, out)
	}

	return binPath
}

// integrationProjectRoot walks up from the package directory to find go.mod.
func integrationProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// isolatedEnv returns an environment pointing all hive state at a temp
// home, so binary invocations never touch the operator's real colony.
func isolatedEnv(t *testing.T) []string {
	t.Helper()
	return append(os.Environ(), "HIVE_HOME="+t.TempDir())
}

// TestHiveBinary_AllSubcommandsHelp verifies that every top-level and
// nested subcommand responds to --help with exit code 0 and non-empty
// stdout.
func TestHiveBinary_AllSubcommandsHelp(t *testing.T) {
	binPath := buildHiveBinary(t)
	env := isolatedEnv(t)

	subcommands := [][]string{
		{"--help"},
		{"init", "--help"},
		{"session", "--help"},
		{"session", "up", "--help"},
		{"session", "down", "--help"},
		{"send", "--help"},
		{"task", "--help"},
		{"task", "create", "--help"},
		{"task", "list", "--help"},
		{"task", "show", "--help"},
		{"task", "assign", "--help"},
		{"task", "cancel", "--help"},
		{"task", "decompose", "--help"},
		{"status", "--help"},
		{"logs", "--help"},
		{"queen", "--help"},
		{"worker", "--help"},
		{"monitor", "--help"},
		{"dash", "--help"},
	}

	for _, args := range subcommands {
		args := args
		name := strings.Join(args, " ")
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmd := exec.Command(binPath, args...) //nolint:gosec // test-only
			cmd.Env = env
			out, err := cmd.Output()
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					t.Fatalf("hive %s exited non-zero (%d)\nstdout: %s\nstderr: %s",
						name, exitErr.ExitCode(), out, exitErr.Stderr)
				}
				t.Fatalf("hive %s failed: %v\nstdout: %s", name, err, out)
			}
			if len(out) == 0 {
				t.Errorf("hive %s: expected non-empty stdout, got empty", name)
			}
		})
	}
}

// TestHiveBinary_ColonyRoundTrip drives the operator workflow end to end
// through the compiled binary: init the colony, create a task, assign it,
// and read the colony status back as JSON.
func TestHiveBinary_ColonyRoundTrip(t *testing.T) {
	binPath := buildHiveBinary(t)
	env := isolatedEnv(t)

	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(binPath, args...) //nolint:gosec // test-only
		cmd.Env = env
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("hive %s: %v\n%s", strings.Join(args, " "), err, out)
		}
		return string(out)
	}

	out := run("init")
	for _, want := range []string{"database", "queen", "developer", "qa", "analyst"} {
		if !strings.Contains(out, want) {
			t.Errorf("init output missing %q:\n%s", want, out)
		}
	}

	out = run("task", "create", "Draft the release notes", "--priority", "high", "--estimate", "2")
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "task" {
		t.Fatalf("unexpected create output: %q", out)
	}
	taskID := fields[1]

	out = run("task", "list", "--unassigned")
	if !strings.Contains(out, "Draft the release notes") {
		t.Errorf("unassigned backlog missing the new task:\n%s", out)
	}

	run("task", "assign", taskID, "developer")

	out = run("task", "show", taskID)
	if !strings.Contains(out, "developer") {
		t.Errorf("task show missing the assignee:\n%s", out)
	}
	if !strings.Contains(out, "Draft the release notes") {
		t.Errorf("task show missing the title:\n%s", out)
	}

	out = run("status", "--json")
	var report struct {
		Tasks []struct {
			Status string `json:"status"`
			Count  int    `json:"count"`
		} `json:"tasks"`
		Unassigned int `json:"unassigned"`
		Bees       []struct {
			Name string `json:"name"`
		} `json:"bees"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("status --json did not parse: %v\n%s", err, out)
	}
	if report.Unassigned != 0 {
		t.Errorf("unassigned = %d after assignment, want 0", report.Unassigned)
	}
	var pending int
	for _, row := range report.Tasks {
		if row.Status == "pending" {
			pending = row.Count
		}
	}
	if pending != 1 {
		t.Errorf("pending count = %d, want 1", pending)
	}
	names := make(map[string]bool, len(report.Bees))
	for _, bee := range report.Bees {
		names[bee.Name] = true
	}
	for _, want := range []string{"queen", "developer", "qa", "analyst"} {
		if !names[want] {
			t.Errorf("status bees missing %q (got %v)", want, report.Bees)
		}
	}
}

// TestHiveBinary_BadInput_Errors verifies that lookups against missing or
// unknown names exit non-zero with an explanatory message.
func TestHiveBinary_BadInput_Errors(t *testing.T) {
	binPath := buildHiveBinary(t)
	env := isolatedEnv(t)

	initCmd := exec.Command(binPath, "init") //nolint:gosec // test-only
	initCmd.Env = env
	if out, err := initCmd.CombinedOutput(); err != nil {
		t.Fatalf("hive init: %v\n%s", err, out)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "show_missing_task",
			args: []string{"task", "show", "no-such-task"},
			want: "not found",
		},
		{
			name: "assign_unknown_bee",
			args: []string{"task", "assign", "no-such-task", "impostor"},
			want: "impostor",
		},
		{
			name: "create_invalid_priority",
			args: []string{"task", "create", "Broken", "--priority", "asap"},
			want: "priority",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd := exec.Command(binPath, tc.args...) //nolint:gosec // test-only
			cmd.Env = env
			combined, err := cmd.CombinedOutput()
			if err == nil {
				t.Fatalf("hive %s: expected non-zero exit\noutput: %s",
					strings.Join(tc.args, " "), combined)
			}
			if !strings.Contains(strings.ToLower(string(combined)), tc.want) {
				t.Errorf("hive %s: output missing %q\ngot: %s",
					strings.Join(tc.args, " "), tc.want, combined)
			}
		})
	}
}
