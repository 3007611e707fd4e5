package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TestWatchColonyDir verifies that a write in the watched directory
// produces an fsChangeMsg instead of waiting for the poll timer.
func TestWatchColonyDir(t *testing.T) {
	dir := t.TempDir()

	watchCmd := watchColonyDir(dir)
	if watchCmd == nil {
		t.Fatal("watchColonyDir returned nil, expected tea.Cmd")
	}

	// The command blocks until a change lands; run it in a goroutine and
	// then touch a file.
	msgChan := make(chan tea.Msg, 1)
	go func() {
		msgChan <- watchCmd()
	}()

	// Give the watcher time to initialize
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(dir, "hive.db-wal")
	if err := os.WriteFile(testFile, []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case msg := <-msgChan:
		if _, ok := msg.(fsChangeMsg); !ok {
			t.Errorf("expected fsChangeMsg, got %T", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for fsChangeMsg after file change")
	}
}

// TestWatchColonyDir_MissingDir verifies the polling fallback: no watcher,
// no command.
func TestWatchColonyDir_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")

	if cmd := watchColonyDir(dir); cmd != nil {
		t.Error("watchColonyDir on a missing dir should return nil")
	}
}
