// Package watch re-tracks knowledge-base files into the claim ledger as
// they are edited on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/ledger"
)

// DefaultDebounce is how long changes are collected before a track run
const DefaultDebounce = 500 * time.Millisecond

// DefaultInclude selects the files that are tracked
var DefaultInclude = []string{"**/*.md"}

// Tracker reconciles files into the ledger under one run
type Tracker interface {
	TrackFiles(paths []string, objective string) (string, []ledger.FileResult, error)
}

// Config configures a Watcher
type Config struct {
	Debounce time.Duration
	Include  []string // doublestar patterns, relative to the knowledge base
	Exclude  []string // added to brain.DefaultExcludes

	// OnTrack is called after every track run
	OnTrack func(runID string, results []ledger.FileResult)
}

// Watcher tracks changed files of one knowledge base
type Watcher struct {
	brain   *brain.Brain
	tracker Tracker
	config  Config
	logger  *slog.Logger

	fsw *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]struct{}

	hashes map[string]string
}

// New creates a watcher for b. Call Run to start it.
func New(b *brain.Brain, tracker Tracker, config Config, logger *slog.Logger) (*Watcher, error) {
	if !b.Exists() {
		return nil, fmt.Errorf("watch %s: %w", b.Name(), brain.ErrNotFound)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if len(config.Include) == 0 {
		config.Include = DefaultInclude
	}
	config.Exclude = append(append([]string{}, brain.DefaultExcludes...), config.Exclude...)

	return &Watcher{
		brain:   b,
		tracker: tracker,
		config:  config,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]struct{}),
		hashes:  make(map[string]string),
	}, nil
}

// Run watches until ctx is done. Existing files are hashed first so only
// real edits trigger a run.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addWatchesRecursive(w.brain.Path()); err != nil {
		return err
	}
	w.seedHashes()

	w.logger.Info("watching knowledge base", "brain", w.brain.Name(), "path", w.brain.Path(), "debounce", w.config.Debounce)

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// skipDir reports whether a directory is ledger state or hidden
func (w *Watcher) skipDir(path string) bool {
	rel, err := filepath.Rel(w.brain.Path(), path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	return rel == brain.MetaDir || strings.HasPrefix(filepath.Base(path), ".")
}

// matches reports whether a knowledge-base-relative path should be tracked
func (w *Watcher) matches(rel string) bool {
	if brain.Excluded(rel, w.config.Exclude) {
		return false
	}
	for _, pattern := range w.config.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) seedHashes() {
	files, err := w.brain.ListFiles()
	if err != nil {
		return
	}
	for _, rel := range files {
		if !w.matches(rel) {
			continue
		}
		if content, err := w.brain.ReadFile(rel); err == nil {
			w.hashes[rel] = contentHash(content)
		}
	}
}

// handleEvent queues writes and creates of matching files and starts
// watching new directories.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.skipDir(event.Name) {
				if err := w.addWatchesRecursive(event.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.logger.Debug("file removed; its claims stay as last tracked", "path", event.Name)
		}
		return
	}

	rel, err := filepath.Rel(w.brain.Path(), event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.matches(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[rel] = struct{}{}
	w.pendingMu.Unlock()
}

// flush tracks every pending file whose content changed, in one run
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	queued := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		queued = append(queued, rel)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()
	sort.Strings(queued)

	var changed []string
	for _, rel := range queued {
		content, err := w.brain.ReadFile(rel)
		if err != nil {
			if !errors.Is(err, brain.ErrNotFound) {
				w.logger.Warn("failed to read changed file", "path", rel, "error", err)
			}
			continue
		}
		hash := contentHash(content)
		if w.hashes[rel] == hash {
			continue
		}
		w.hashes[rel] = hash
		changed = append(changed, rel)
	}
	if len(changed) == 0 {
		return
	}

	runID, results, err := w.tracker.TrackFiles(changed, "watch")
	if err != nil {
		w.logger.Error("track run failed", "brain", w.brain.Name(), "error", err)
		return
	}
	for _, r := range results {
		if r.Err != nil {
			w.logger.Warn("track failed", "file", r.FilePath, "error", r.Err)
			continue
		}
		w.logger.Info("tracked", "file", r.FilePath, "run_id", runID,
			"created", r.Summary.Created, "unchanged", r.Summary.Unchanged,
			"superseded", r.Summary.Superseded, "warnings", r.Summary.Warnings)
	}
	if w.config.OnTrack != nil {
		w.config.OnTrack(runID, results)
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
