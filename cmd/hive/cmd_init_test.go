package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"hive/pkg/hive"
)

func TestInitSeedsColony(t *testing.T) {
	home := setupHive(t)

	out := mustExec(t, "init")
	if !strings.Contains(out, "hive initialized") {
		t.Errorf("output missing completion line:\n%s", out)
	}

	st := openColonyStore(t, home)
	ctx := context.Background()

	for _, name := range []string{"queen", "developer", "qa", "analyst"} {
		b, err := st.Bee(ctx, name)
		if err != nil {
			t.Fatalf("Bee(%s): %v", name, err)
		}
		if b.Status != hive.BeeIdle {
			t.Errorf("%s status = %s, want idle", name, b.Status)
		}
	}

	qa, err := st.Bee(ctx, "qa")
	if err != nil {
		t.Fatalf("Bee(qa): %v", err)
	}
	if !slices.Contains(qa.Capabilities, "testing") {
		t.Errorf("qa capabilities = %v, want to include testing", qa.Capabilities)
	}
}

func TestInitIsRerunnable(t *testing.T) {
	setupHive(t)

	mustExec(t, "init")
	out := mustExec(t, "init")
	if !strings.Contains(out, "hive initialized") {
		t.Errorf("second init output:\n%s", out)
	}
}

func TestInitKeepsExistingConfig(t *testing.T) {
	home := setupHive(t)

	out := mustExec(t, "init")
	if strings.Contains(out, "(created)") {
		t.Errorf("init overwrote an existing config:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(home, "hive.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != testConfigYAML {
		t.Errorf("config file changed:\n%s", data)
	}
}

func TestInitWritesDefaultConfigWhenMissing(t *testing.T) {
	home := setupHive(t)
	if err := os.Remove(filepath.Join(home, "hive.yaml")); err != nil {
		t.Fatalf("remove config: %v", err)
	}

	out := mustExec(t, "init")
	if !strings.Contains(out, "(created)") {
		t.Errorf("init did not report config creation:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(home, "hive.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "assignment_strategy: balanced") {
		t.Errorf("default config missing strategy line:\n%s", data)
	}
}
