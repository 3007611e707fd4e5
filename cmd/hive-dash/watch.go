package main

import (
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// fsChangeMsg is sent when a file change is detected in the colony
// database directory. SQLite writes touch the -wal/-shm files, so this
// wakes the dashboard without waiting out the poll timer.
type fsChangeMsg struct{}

// watchColonyDir creates a file system watcher for the database directory.
// Returns nil if the directory doesn't exist or watcher creation fails
// (dashboard will fall back to polling-only mode). The returned command
// delivers one fsChangeMsg and closes the watcher; the model re-arms it.
func watchColonyDir(dir string) tea.Cmd {
	watcher := initWatcher(dir)
	if watcher == nil {
		return nil
	}
	return awaitChange(watcher)
}

// initWatcher creates and initializes a file system watcher for the given
// directory. Returns nil if initialization fails.
func initWatcher(dir string) *fsnotify.Watcher {
	if _, err := os.Stat(dir); err != nil {
		// Directory doesn't exist, fall back to polling
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify: failed to create watcher: %v (falling back to polling)", err)
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close() // Best effort close
		log.Printf("fsnotify: failed to watch %s: %v (falling back to polling)", dir, err)
		return nil
	}

	return watcher
}

// awaitChange returns a tea.Cmd that blocks until a file system event lands,
// debounces the burst, then returns fsChangeMsg. The watcher is closed on
// return, so each delivered message costs one watcher.
func awaitChange(watcher *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		defer watcher.Close() //nolint:errcheck // best-effort close, watcher is single-use

		debounceTimer := newDebounceTimer()
		defer debounceTimer.Stop()

		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				resetDebounceTimer(debounceTimer)

			case <-debounceTimer.C:
				// Debounce period elapsed, report the change
				return fsChangeMsg{}

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				log.Printf("fsnotify: watcher error: %v", err)
				return nil
			}
		}
	}
}

// newDebounceTimer creates a stopped, drained timer for debouncing file
// system events.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

// resetDebounceTimer resets the debounce timer to prevent rapid-fire events.
func resetDebounceTimer(timer *time.Timer) {
	const debounceDuration = 100 * time.Millisecond
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
