// Package fsmonitor watches the configured download roots and correlates
// newly landed files back to an originating download, emitting takeover
// requests to the pool. Recursive watch setup, the events/errors select
// loop and the inotify-exhaustion fallback message are adapted from
// justinlime-GileBrowser's handlers/watcher.go. Event debouncing is
// grounded on the shape of restic's internal/bloblru cache (hashicorp/
// golang-lru/v2), retargeted from cached blob bytes to a recently-seen-path
// window (spec.md §4.6, "Debounced event coalescing (>= 500 ms)").
package fsmonitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/throttlehq/throttle/internal/config"
	"github.com/throttlehq/throttle/internal/debug"
)

const debounceWindow = 500 * time.Millisecond

// Takeover is the callback invoked once per coalesced, classified event.
// internal/fsmonitor's cmd/throttle wiring points this at an IPC client
// call to the pool's takeover port.
type Takeover func(req TakeoverRequest)

// Monitor watches a set of roots and emits Takeover calls for qualifying
// files (spec.md §4.6).
type Monitor struct {
	watcher  *fsnotify.Watcher
	roots    []string
	takeover Takeover
	seen     *lru.Cache[string, time.Time]
	hasher   Hasher
}

// Hasher computes a best-effort content hash for a landed file. Injectable
// so tests can avoid hashing large fixtures.
type Hasher interface {
	Hash(path string) (string, bool)
}

// New builds a Monitor over roots, invoking takeover for each qualifying,
// debounced file-created event.
func New(roots []string, takeover Takeover, hasher Hasher) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	seen, err := lru.New[string, time.Time](4096)
	if err != nil {
		return nil, err
	}
	if hasher == nil {
		hasher = sha256Hasher{}
	}
	return &Monitor{watcher: w, roots: roots, takeover: takeover, seen: seen, hasher: hasher}, nil
}

// DefaultRoots resolves spec.md §4.6's default watch roots against $HOME.
func DefaultRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(config.DefaultRoots))
	for _, r := range config.DefaultRoots {
		out = append(out, filepath.Join(home, r))
	}
	return out
}

// Run watches every root recursively and processes events until ctx is
// done.
func (m *Monitor) Run(ctx context.Context) error {
	for _, root := range m.roots {
		if err := m.watchRecursive(root); err != nil {
			debug.Log("fsmonitor: could not watch %s: %v", root, err)
		}
	}
	defer m.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			m.handleEvent(ctx, event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			debug.Log("fsmonitor: watch error: %v", err)
		}
	}
}

func (m *Monitor) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			debug.Log("fsmonitor: skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if excluded(path) {
			return filepath.SkipDir
		}
		if err := m.watcher.Add(path); err != nil {
			if errors.Is(err, syscall.ENOSPC) {
				debug.Log("fsmonitor: inotify watch limit reached at %s, stopping recursive add", path)
				return filepath.SkipAll
			}
			debug.Log("fsmonitor: could not watch %s: %v", path, err)
		}
		return nil
	})
}

// excluded reports whether path's base name is in spec.md §4.6's system-
// directory exclusion list.
func excluded(path string) bool {
	return config.ExcludedDirNames[strings.ToLower(filepath.Base(path))]
}

func (m *Monitor) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if !excluded(event.Name) {
				if err := m.watcher.Add(event.Name); err != nil {
					debug.Log("fsmonitor: could not watch new dir %s: %v", event.Name, err)
				}
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if m.debounced(event.Name) {
		return
	}
	m.processFile(ctx, event.Name)
}

// debounced reports whether path was seen within the last debounceWindow,
// and records the current observation either way.
func (m *Monitor) debounced(path string) bool {
	now := time.Now()
	if last, ok := m.seen.Get(path); ok && now.Sub(last) < debounceWindow {
		m.seen.Add(path, now)
		return true
	}
	m.seen.Add(path, now)
	return false
}

func (m *Monitor) processFile(ctx context.Context, path string) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return
	}
	if !qualifies(path, fi.Size()) {
		return
	}

	classification := Classify(path)
	var hash string
	if h, ok := m.hasher.Hash(path); ok {
		hash = h
	}

	m.takeover(TakeoverRequest{
		FilePath:   path,
		URL:        classification.URL,
		PID:        classification.PID,
		SHA256:     hash,
		Classified: classification.Source,
	})
}

const maxDownloadBytes = 50 << 30 // 50 GiB, spec.md §4.6

// qualifies implements spec.md §4.6's ignore rules: directories (filtered
// earlier), zero-byte files, files over 50 GiB, partial-download
// extensions, and non-download-like extensions.
func qualifies(path string, size int64) bool {
	if size == 0 || size > maxDownloadBytes {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if config.PartialExtensions[ext] {
		return false
	}
	return downloadLikeExtensions[ext]
}
