package store //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"testing"
	"time"

	"hive/pkg/hive"
)

func TestUpsertBeePreservesCapabilitiesAndPerformance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertBee(ctx, "developer", hive.BeeIdle, "", 0); err != nil {
		t.Fatalf("UpsertBee: %v", err)
	}
	if err := s.SetCapabilities(ctx, "developer", []string{"code", "debug"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPerformance(ctx, "developer", 80); err != nil {
		t.Fatal(err)
	}

	// A later upsert refreshes the live fields only.
	if err := s.UpsertBee(ctx, "developer", hive.BeeBusy, "task-1", 33); err != nil {
		t.Fatal(err)
	}

	b, err := s.Bee(ctx, "developer")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != hive.BeeBusy || b.CurrentTaskID != "task-1" || b.WorkloadScore != 33 {
		t.Errorf("live fields = %+v", b)
	}
	if len(b.Capabilities) != 2 || b.Capabilities[0] != "code" {
		t.Errorf("Capabilities = %v, clobbered by upsert", b.Capabilities)
	}
	if b.PerformanceScore != 80 {
		t.Errorf("PerformanceScore = %v, clobbered by upsert", b.PerformanceScore)
	}
}

func TestUpsertBeeClampsWorkload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertBee(ctx, "qa", hive.BeeIdle, "", 250); err != nil {
		t.Fatal(err)
	}
	b, err := s.Bee(ctx, "qa")
	if err != nil {
		t.Fatal(err)
	}
	if b.WorkloadScore != 100 {
		t.Errorf("WorkloadScore = %v, want clamped 100", b.WorkloadScore)
	}

	if err := s.SetPerformance(ctx, "qa", -10); err != nil {
		t.Fatal(err)
	}
	if b, err = s.Bee(ctx, "qa"); err != nil {
		t.Fatal(err)
	}
	if b.PerformanceScore != 0 {
		t.Errorf("PerformanceScore = %v, want clamped 0", b.PerformanceScore)
	}
}

func TestBeeSettersRequireExistingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetStatus(ctx, "ghost", hive.BeeIdle); !hive.IsNotFound(err) {
		t.Errorf("SetStatus = %v, want NotFoundError", err)
	}
	if err := s.SetCapabilities(ctx, "ghost", []string{"x"}); !hive.IsNotFound(err) {
		t.Errorf("SetCapabilities = %v, want NotFoundError", err)
	}
	if err := s.SetPerformance(ctx, "ghost", 50); !hive.IsNotFound(err) {
		t.Errorf("SetPerformance = %v, want NotFoundError", err)
	}
	if err := s.Heartbeat(ctx, "ghost"); !hive.IsNotFound(err) {
		t.Errorf("Heartbeat = %v, want NotFoundError", err)
	}
}

func TestBeesReturnsGivenOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"analyst", "developer", "qa"} {
		if err := s.UpsertBee(ctx, name, hive.BeeIdle, "", 0); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Bees(ctx, "developer", "qa", "missing", "analyst")
	if err != nil {
		t.Fatalf("Bees: %v", err)
	}
	want := []string{"developer", "qa", "analyst"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Name, name)
		}
	}

	all, err := s.Bees(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Bees() len = %d, want 3", len(all))
	}
}

func TestStaleBees(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertBee(ctx, "fresh", hive.BeeIdle, "", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertBee(ctx, "stale", hive.BeeBusy, "", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertBee(ctx, "gone", hive.BeeOffline, "", 0); err != nil {
		t.Fatal(err)
	}

	// Advance the clock well past the upserts, refresh only "fresh".
	base := s.now().Add(time.Hour)
	s.now = func() time.Time { return base }
	if err := s.Heartbeat(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	stale, err := s.StaleBees(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("StaleBees: %v", err)
	}
	if len(stale) != 1 || stale[0].Name != "stale" {
		names := make([]string, len(stale))
		for i, b := range stale {
			names[i] = b.Name
		}
		t.Errorf("StaleBees = %v, want [stale]: offline rows and fresh heartbeats are excluded", names)
	}
}
